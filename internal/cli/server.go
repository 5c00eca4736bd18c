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

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	pginfra "quiz-battle-service/internal/infra/postgres"
	redisinfra "quiz-battle-service/internal/infra/redis"
	transport "quiz-battle-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle service",
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	cacheTTL := config.TTLDuration(cfg.Battle.CacheTTL, 10*time.Minute)
	roomTTL := config.TTLDuration(cfg.Battle.RoomTTL, 5*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var catalog app.QuizCatalog
	var oracle app.AnswerOracle
	var users app.UserDirectory
	var store app.BattleStore
	if pool != nil {
		catalog = memory.NewQuizCatalog(pginfra.NewCatalogLoader(pool), cacheTTL)
		users = pginfra.NewUserDirectory(pool)
		keyLoader := pginfra.NewAnswerKeyLoader(pool)
		if redisClient != nil {
			oracle = redisinfra.NewAnswerOracle(redisClient, keyLoader, cacheTTL)
		} else {
			oracle = uncachedOracle{loader: keyLoader}
		}

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		store = pginfra.NewBattleStore(bun.NewDB(sqldb, pgdialect.New()))
	} else {
		catalog = memory.NewQuizCatalog(memory.NewStaticCatalogLoader(sampleQuizNames()), cacheTTL)
		oracle = memory.NewStaticAnswerKey(sampleAnswerKey())
		users = memory.NewStaticUserDirectory(sampleUsers())
	}

	var rooms app.RoomDirectory
	var bcast app.BroadcastPort
	if redisClient != nil {
		rooms = redisinfra.NewRoomDirectory(redisClient, redisTTL)
		bcast = redisinfra.NewBroadcaster(redisClient)
	} else {
		rooms = memory.NewRoomDirectory()
	}

	service := app.NewBattleService(rooms, catalog, oracle, users, store, bcast)

	janitorCtx, janitorCancel := context.WithCancel(ctx)
	defer janitorCancel()
	go service.RunJanitor(janitorCtx, time.Minute, roomTTL)

	wsHandler := transport.NewWSHandler(service)
	restHandler := transport.NewRESTHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	restHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting battle service on :%s", finalPort)
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

// uncachedOracle consults the backing answer key directly when no Redis
// cache is configured.
type uncachedOracle struct {
	loader redisinfra.AnswerLoader
}

func (o uncachedOracle) IsOptionCorrect(ctx context.Context, optionID string) (bool, error) {
	return o.loader.LoadOptionCorrect(ctx, optionID)
}

// sampleQuizNames provides minimal demo data; swap in the Postgres-backed
// loaders in production.
func sampleQuizNames() map[string]string {
	return map[string]string{
		"quiz-1": "General Knowledge",
	}
}

func sampleAnswerKey() map[string]bool {
	return map[string]bool{
		"o1": false,
		"o2": true,
		"o3": false,
	}
}

func sampleUsers() map[string]domain.DisplayInfo {
	return map[string]domain.DisplayInfo{
		"u1": {DisplayName: "Alice"},
		"u2": {DisplayName: "Bob"},
	}
}
