package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vovakirdan/educhat/internal/app"
	"github.com/vovakirdan/educhat/internal/config"
	applog "github.com/vovakirdan/educhat/internal/log"
)

func newServeCommand() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := applog.New("info", "console")
			cfg, path, err := config.Load(bootLog, v, configPath)
			if err != nil {
				return err
			}

			logger := applog.New(cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	def := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config.yaml")
	flags.String("addr", def.Addr, "HTTP listen address")
	flags.Duration("read-header-timeout", def.ReadHeaderTimeout, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown timeout")
	flags.Duration("handshake-timeout", def.HandshakeTimeout, "time allowed for the auth frame")
	flags.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", def.LogFormat, "log format (console, json)")
	flags.String("db-driver", def.DBDriver, "message store driver (sqlite, postgres)")
	flags.String("db-path", def.DBPath, "SQLite database path")
	flags.String("db-dsn", def.DBDSN, "PostgreSQL DSN")
	flags.String("profile-backend", def.ProfileBackend, "profile store (sql, mongo)")
	flags.String("redis-addr", def.RedisAddr, "Redis address for multi-instance fan-out")

	bindFlags(v, cmd, map[string]string{
		"addr":                "addr",
		"read_header_timeout": "read-header-timeout",
		"shutdown_timeout":    "shutdown-timeout",
		"handshake_timeout":   "handshake-timeout",
		"log_level":           "log-level",
		"log_format":          "log-format",
		"db_driver":           "db-driver",
		"db_path":             "db-path",
		"db_dsn":              "db-dsn",
		"profile_backend":     "profile-backend",
		"redis_addr":          "redis-addr",
	})
	return cmd
}

// bindFlags binds flags to viper keys so that only flags set on the command line override the config file.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}
