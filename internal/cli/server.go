package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"arena-session-service/internal/app"
	"arena-session-service/internal/config"
	"arena-session-service/internal/domain"
	"arena-session-service/internal/infra/memory"
	pginfra "arena-session-service/internal/infra/postgres"
	redisinfra "arena-session-service/internal/infra/redis"
	transport "arena-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the coordinator.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	registryTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)
	answerTTL := config.TTLDuration(cfg.Session.AnswerTTL, 24*time.Hour)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}

	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var registry app.SessionRegistry
	var ledger app.AnswerLedger
	if redisClient != nil {
		registry = redisinfra.NewSessionRegistry(redisClient, registryTTL)
		ledger = redisinfra.NewAnswerLedger(redisClient, answerTTL)
	} else {
		registry = memory.NewSessionRegistry()
		ledger = memory.NewAnswerLedger()
	}

	opts := []app.CoordinatorOption{}
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		opts = append(opts, app.WithResultsArchiver(pginfra.NewResultsArchive(db)))
	}

	coordinator := app.NewCoordinator(registry, quizRepo, ledger, opts...)
	api := transport.NewAPI(coordinator)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a demo quiz when no backing store is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			ID:              "demo",
			DurationSeconds: 900,
			Questions: []domain.Question{
				{
					Text:          "What is the capital of France?",
					Options:       []string{"Berlin", "Madrid", "Paris", "Rome"},
					CorrectAnswer: "Paris",
				},
				{
					Text:          "Which planet is known as the Red Planet?",
					Options:       []string{"Earth", "Mars", "Jupiter", "Venus"},
					CorrectAnswer: "Mars",
				},
				{
					Text:          "What is the chemical symbol for water?",
					Options:       []string{"O2", "H2O", "CO2", "NaCl"},
					CorrectAnswer: "H2O",
				},
				{
					Text:          "How many continents are there?",
					Options:       []string{"5", "6", "7", "8"},
					CorrectAnswer: "7",
				},
			},
		},
	}
}
