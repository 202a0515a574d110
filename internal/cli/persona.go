package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/parley-labs/parley/internal/config"
	"github.com/parley-labs/parley/internal/repository"
	"github.com/parley-labs/parley/internal/vectorindex"
)

func PersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage personas",
		Long:  "List and delete personas directly against the database and vector index",
	}

	cmd.AddCommand(PersonaListCmd())
	cmd.AddCommand(PersonaDeleteCmd())

	return cmd
}

func PersonaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all personas",
		Long:  "List all personas in the system",
		RunE:  runPersonaList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runPersonaList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewPersonaRepository(pool)

	personas, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list personas: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(personas))
		for i, p := range personas {
			data[i] = map[string]interface{}{
				"id":         p.ID,
				"name":       p.Name,
				"namespace":  p.Namespace,
				"created_at": p.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(personas) == 0 {
			fmt.Println("No personas found")
			return nil
		}
		fmt.Println("Personas:")
		for _, p := range personas {
			fmt.Printf("  %s: %s (namespace: %s, created: %s)\n",
				p.ID, p.Name, p.Namespace, p.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func PersonaDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a persona",
		Long:  "Delete a persona, its chat history, and its vector collection",
		Args:  cobra.ExactArgs(1),
		RunE:  runPersonaDelete,
	}

	return cmd
}

func runPersonaDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	personaRepo := repository.NewPersonaRepository(pool)
	messageRepo := repository.NewChatMessageRepository(pool)

	persona, err := personaRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load persona: %w", err)
	}

	if err := messageRepo.DeleteByPersona(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chat history: %w", err)
	}

	if err := personaRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}

	index := vectorindex.NewQdrantIndex(vectorindex.Config{
		URL:    cfg.QdrantURL,
		APIKey: cfg.QdrantAPIKey,
	})
	if err := index.DeleteCollection(ctx, persona.Namespace); err != nil {
		fmt.Printf("warning: failed to delete collection %s: %v\n", persona.Namespace, err)
	}

	fmt.Printf("Persona deleted: %s (%s)\n", persona.Name, persona.ID)
	return nil
}

func getDBPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return cfg, pool, nil
}
