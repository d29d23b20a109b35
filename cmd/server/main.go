package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/roomchat/internal/api"
	"github.com/npezzotti/roomchat/internal/config"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/pubsub"
	"github.com/npezzotti/roomchat/internal/server"
	"github.com/npezzotti/roomchat/internal/stats"
	"github.com/sirupsen/logrus"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// envOr lets a .env file or the environment supply flag defaults.
func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

var (
	addr           string
	storeDriver    string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	redisAddr      string
	redisPassword  string
	redisDB        int
	sweepInterval  time.Duration
	decodePolicy   string
	logLevel       string
)

func main() {
	log := logrus.New()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env")
	}

	redisDBDefault, _ := strconv.Atoi(envOr("REDIS_DB", "0"))
	sweepDefault, err := time.ParseDuration(envOr("SWEEP_INTERVAL", config.DefaultSweepInterval.String()))
	if err != nil {
		sweepDefault = config.DefaultSweepInterval
	}

	flag.StringVar(&addr, "addr", envOr("ADDR", "localhost:8000"), "server address")
	flag.StringVar(&storeDriver, "store", envOr("STORE", config.StorePostgres), "storage backend: postgres or bolt")
	flag.StringVar(&dsn, "dsn", envOr("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string, or file path for bolt")
	flag.StringVar(&signingKey, "signing-key", envOr("SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", envOr("REDIS_ADDR", ""), "redis address for cross-process fan-out; empty disables it")
	flag.StringVar(&redisPassword, "redis-password", envOr("REDIS_PASSWORD", ""), "redis password")
	flag.IntVar(&redisDB, "redis-db", redisDBDefault, "redis database")
	flag.DurationVar(&sweepInterval, "sweep-interval", sweepDefault, "how often expired messages are removed")
	flag.StringVar(&decodePolicy, "decode-policy", envOr("DECODE_POLICY", "default"), "handling of malformed stored data: default or reject")
	flag.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := envOr("ALLOWED_ORIGINS", ""); v != "" {
			allowedOrigins.Set(v)
		}
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := log.WithField("app", "roomchat")

	cfg, err := config.NewConfig(addr, storeDriver, dsn, signingKey, allowedOrigins,
		config.WithRedis(redisAddr, redisPassword, redisDB),
		config.WithSweepInterval(sweepInterval),
		config.WithDecodePolicy(decodePolicy),
	)
	if err != nil {
		logger.WithError(err).Fatal("config")
	}

	repo, err := openStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("db open")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.WithError(err).Error("db close")
		}
	}()

	opts := []server.Option{
		server.WithSweepInterval(cfg.SweepInterval),
		server.WithDecodePolicy(cfg.DecodePolicy),
	}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := pubsub.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("redis dial")
		}

		relay := pubsub.NewRedisRelay(client, pubsub.DefaultTopic, logger)
		defer relay.Close()
		opts = append(opts, server.WithRelay(relay))
		logger.WithField("redis_addr", cfg.RedisAddr).Info("cross-process relay enabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, "roomchat-stats")

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater, opts...)
	if err != nil {
		logger.WithError(err).Fatal("new chat server")
	}

	srv := api.NewRoomChatApp(mux, logger, chatServer, repo, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.WithField("signal", sig.String()).Info("received signal")
	case err := <-errCh:
		logger.WithError(err).Error("server")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown")
	}

	logger.Info("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.WithError(err).Error("chat server shutdown")
	}

	logger.Info("shutdown complete")
}

func openStore(cfg *config.Config) (database.RoomChatRepository, error) {
	if cfg.StoreDriver == config.StoreBolt {
		bolt, err := database.NewBoltRoomChatRepository(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		return bolt, nil
	}

	pg, err := database.NewPgRoomChatRepository(cfg.StoreDSN)
	if err != nil {
		return nil, err
	}

	if err := pg.Migrate(); err != nil {
		pg.Close()
		return nil, err
	}

	return pg, nil
}
