package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/shohag/pushrelay/internal/api"
	"github.com/shohag/pushrelay/internal/config"
	"github.com/shohag/pushrelay/internal/feedback"
	"github.com/shohag/pushrelay/internal/metrics"
	"github.com/shohag/pushrelay/internal/models"
	"github.com/shohag/pushrelay/internal/push"
	"github.com/shohag/pushrelay/internal/storage"
	"github.com/shohag/pushrelay/internal/wire"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pushrelay",
		Short: "PushRelay: relay for the legacy binary push notification gateway",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(sendCmd(&configPath))
	rootCmd.AddCommand(feedbackCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway session, feedback poller and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			client, err := push.Dial(cfg, log, push.WithMetrics(metrics.New(reg)))
			if err != nil {
				return fmt.Errorf("failed to start push client: %w", err)
			}
			client.AddFeedbackListener(feedback.NewRecorder(store, log))

			server := api.NewServer(cfg.Server, client, store, reg, log)

			var wg conc.WaitGroup
			wg.Go(func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal().Err(err).Msg("server error")
				}
			})

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("environment", cfg.Gateway.Environment).
				Str("storage", cfg.Storage.Driver).
				Msg("PushRelay is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}
			wg.Wait()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.CloseTimeout)
			defer cancel()
			if err := client.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("push client shutdown error")
			}

			log.Info().Msg("PushRelay stopped")
			return nil
		},
	}
}

func sendCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification and wait for it to be written",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			tokenHex, _ := flags.GetString("token")
			alert, _ := flags.GetString("alert")
			sound, _ := flags.GetString("sound")
			badge, _ := flags.GetInt("badge")
			timeout, _ := flags.GetDuration("timeout")
			dryRun, _ := flags.GetBool("dry-run")

			if tokenHex == "" {
				return fmt.Errorf("--token is required")
			}
			token, err := hex.DecodeString(tokenHex)
			if err != nil {
				return fmt.Errorf("--token must be hex encoded: %w", err)
			}

			build := func(n *models.Notification) *models.Notification {
				if alert != "" {
					n.WithAlert(alert)
				}
				if sound != "" {
					n.WithSound(sound)
				}
				if flags.Changed("badge") {
					n.WithBadge(badge)
				}
				return n
			}

			if dryRun {
				frame, err := wire.EncodeNotification(build(models.NewNotification(1, token)))
				if err != nil {
					return err
				}
				fmt.Println(hex.EncodeToString(frame))
				return nil
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg.Feedback.Enabled = false
			log := setupLogger(cfg.Logging)

			client, err := push.Dial(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to start push client: %w", err)
			}

			n := build(client.Create(token))
			if err := client.Send(n); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			waitErr := client.WaitIdle(ctx)

			closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Gateway.CloseTimeout)
			defer closeCancel()
			if err := client.Shutdown(closeCtx); err != nil {
				log.Error().Err(err).Msg("push client shutdown error")
			}

			if waitErr != nil {
				return waitErr
			}
			fmt.Printf("notification %d written\n", n.ID)
			return nil
		},
	}
	cmd.Flags().String("token", "", "device token (hex)")
	cmd.Flags().String("alert", "", "alert text")
	cmd.Flags().String("sound", "", "sound file name")
	cmd.Flags().Int("badge", 0, "badge number")
	cmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the notification to be written")
	cmd.Flags().Bool("dry-run", false, "print the encoded frame instead of sending it")
	return cmd
}

// printer writes every feedback record to stdout as a JSON line.
type printer struct {
	enc *json.Encoder
}

func (p *printer) Feedback(rec models.FeedbackRecord) error {
	return p.enc.Encode(map[string]any{
		"token":       hex.EncodeToString(rec.Token),
		"reported_at": rec.Time().UTC(),
	})
}

func feedbackCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Poll the feedback service once and print the reported tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			save, _ := cmd.Flags().GetBool("save")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log := setupLogger(cfg.Logging)

			poller, err := push.DialFeedback(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create feedback poller: %w", err)
			}
			defer poller.Stop()

			poller.AddListener(&printer{enc: json.NewEncoder(os.Stdout)})
			if save {
				store, cleanup, err := storeFromConfig(cfg, log)
				if err != nil {
					return err
				}
				defer cleanup()
				poller.AddListener(feedback.NewRecorder(store, log))
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			n, err := poller.PollOnce(ctx)
			if err != nil {
				return fmt.Errorf("feedback poll failed: %w", err)
			}
			log.Info().Int("records", n).Msg("feedback poll completed")
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "also store the reported tokens")
	cmd.Flags().Duration("timeout", time.Minute, "poll timeout")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PushRelay v%s\n", version)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(cfg *config.Config, log zerolog.Logger) (storage.Storage, func(), error) {
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
