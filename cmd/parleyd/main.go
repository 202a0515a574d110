package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-labs/parley/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "parleyd",
		Short: "Parley daemon and CLI",
		Long:  "Parley daemon for running the persona chat API server and managing personas",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.PersonaCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
