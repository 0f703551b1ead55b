package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/the-sect/backend/internal/auth"
	"github.com/the-sect/backend/internal/config"
	"github.com/the-sect/backend/internal/cults"
	"github.com/the-sect/backend/internal/database"
	"github.com/the-sect/backend/internal/logging"
	"github.com/the-sect/backend/internal/ranking"
	"github.com/the-sect/backend/internal/room"
	"github.com/the-sect/backend/internal/server"
	"github.com/the-sect/backend/internal/users"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sect-api",
		Short: "Sect community backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().Int("refresh-interval-s", defaults.GetInt("ranking.refresh_interval_s"), "Ranking refresh interval in seconds")
	cmd.PersistentFlags().Int("archive-hour", defaults.GetInt("ranking.archive_hour"), "Local hour for the daily ranking snapshot")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "ranking.refresh_interval_s", "refresh-interval-s")
	bindFlag(cmd, "ranking.archive_hour", "archive-hour")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "sect-auth",
		Audience:      "sect-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	idProvider := cults.NewUUIDProvider()

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}

	rooms := room.NewRegistry(room.RegistryConfig{Logger: logger})

	metricsSource, err := ranking.NewSQLMetrics(db)
	if err != nil {
		return err
	}
	engine, err := ranking.NewEngine(metricsSource, time.Now)
	if err != nil {
		return err
	}
	rankingCache, err := ranking.NewCache(engine, time.Now)
	if err != nil {
		return err
	}
	archiver, err := ranking.NewArchiver(db, time.Now, idProvider)
	if err != nil {
		return err
	}
	scheduler, err := ranking.NewScheduler(ranking.SchedulerConfig{
		Cache:       rankingCache,
		Archiver:    archiver,
		Interval:    appConfig.RefreshInterval,
		ArchiveHour: appConfig.ArchiveHour,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	cultService, err := cults.NewService(cults.ServiceConfig{
		Database:    db,
		IDProvider:  idProvider,
		Broadcaster: rooms,
		Ranking:     rankingCache,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Users:        userService,
		Cults:        cultService,
		Ranking:      rankingCache,
		Rooms:        rooms,
		Snapshots:    archiver,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
