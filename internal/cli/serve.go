package cli

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/parley-labs/parley/internal/api/handlers"
	"github.com/parley-labs/parley/internal/config"
	"github.com/parley-labs/parley/internal/domain"
	"github.com/parley-labs/parley/internal/jobs"
	"github.com/parley-labs/parley/internal/llm"
	"github.com/parley-labs/parley/internal/repository"
	"github.com/parley-labs/parley/internal/server"
	"github.com/parley-labs/parley/internal/service"
	"github.com/parley-labs/parley/internal/telemetry"
	"github.com/parley-labs/parley/internal/vectorindex"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the parley API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("PARLEY_OPENAI_API_KEY is required")
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	personaRepo := repository.NewPersonaRepository(pool)
	messageRepo := repository.NewChatMessageRepository(pool)

	llmClient := llm.NewClientWithConfig(llm.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		Timeout:             cfg.ProviderTimeout,
	})

	index := vectorindex.NewQdrantIndex(vectorindex.Config{
		URL:     cfg.QdrantURL,
		APIKey:  cfg.QdrantAPIKey,
		Timeout: cfg.ProviderTimeout,
	})

	pipeline := service.NewEmbeddingPipeline(llmClient, cfg.EmbedConcurrency)
	ingestSvc := service.NewIngestService(pipeline, index, service.ChunkConfig{
		MinWords:     cfg.ChunkMinWords,
		MaxWords:     cfg.ChunkMaxWords,
		OverlapWords: cfg.ChunkOverlapWords,
	})
	chatSvc := service.NewChatService(pipeline, index, llmClient, cfg.RetrievalTopK)
	personaSvc := service.NewPersonaService(personaRepo, ingestSvc)

	janitor := jobs.NewNamespaceJanitor(index, personaRepo)
	janitorWorker := jobs.NewWorker(janitor, cfg.JanitorInterval)
	go janitorWorker.Start(ctx)
	log.Println("namespace janitor started")

	routerCfg := server.RouterConfig{
		PersonaHandler: handlers.NewPersonaHandler(personaSvc),
		ChatHandler:    handlers.NewChatHandler(chatSvc, personaRepo, messageRepo),
	}
	if cfg.HasAuth() {
		routerCfg.AuthValidator = &staticTokenValidator{token: cfg.APIToken}
	} else {
		log.Println("warning: PARLEY_API_TOKEN not set, API is unauthenticated")
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	janitorWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// staticTokenValidator accepts a single operator-configured token.
// Real multi-user auth is an external collaborator behind the
// AuthValidator interface.
type staticTokenValidator struct {
	token string
}

func (v *staticTokenValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		return "", domain.ErrInvalidToken
	}
	return "operator", nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if upErr == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
