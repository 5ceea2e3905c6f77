package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
	pginfra "arena-session-service/internal/infra/postgres"
	pgmigrations "arena-session-service/internal/infra/postgres/migrations"
	redisinfra "arena-session-service/internal/infra/redis"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := seedQuiz(t, ctx, pgURL, sampleQuiz())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizRepo := redisinfra.NewQuizRepository(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)
	registry := redisinfra.NewSessionRegistry(redisClient, 5*time.Minute)
	ledger := redisinfra.NewAnswerLedger(redisClient, 5*time.Minute)
	archive := pginfra.NewResultsArchive(db)
	coordinator := app.NewCoordinator(registry, quizRepo, ledger, app.WithResultsArchiver(archive))

	code, err := coordinator.CreateSessionFromQuiz(ctx, "demo")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	alice, err := coordinator.Join(ctx, code, "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := coordinator.Join(ctx, code, "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	result, err := coordinator.SubmitAnswer(ctx, code, bob.ID, 0, "Paris")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.TotalScore != 10 {
		t.Fatalf("expected correct answer worth 10, got %+v", result)
	}

	// A retried submission is a duplicate even with a different option.
	_, err = coordinator.SubmitAnswer(ctx, code, bob.ID, 0, "Rome")
	if err != domain.ErrDuplicateAnswer {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	if err := coordinator.EndSession(ctx, code); err != nil {
		t.Fatalf("end: %v", err)
	}

	res, err := coordinator.Results(ctx, code, alice.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Rank != 2 || res.Score != 0 {
		t.Fatalf("expected alice rank 2 score 0, got %+v", res)
	}

	// The final leaderboard lands in the archive shortly after end.
	deadline := time.Now().Add(10 * time.Second)
	for {
		archived, err := archive.Load(ctx, code)
		if err == nil {
			if len(archived.Entries) != 2 || archived.Entries[0].PlayerID != bob.ID {
				t.Fatalf("unexpected archived leaderboard: %+v", archived)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("archived results never appeared: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "arena", "POSTGRES_PASSWORD": "arenapass", "POSTGRES_DB": "arenadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://arena:arenapass@%s:%s/arenadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "demo",
		DurationSeconds: 300,
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
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
