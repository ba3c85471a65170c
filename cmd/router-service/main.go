package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "eventrouter/cmd/router-service/docs"
	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	"eventrouter/internal/scheduler"
	"eventrouter/pkg/logging"
)

var (
	configFile string
)

// @title           Event Router API
// @version         1.0
// @description     Ingest events, manage routing rules and schedules, inspect dead letters
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Rule-based event router",
		Long:  "Router service matches incoming events against rules and delivers them to targets with retries and dead-lettering",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateRulesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Warn("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		earlyLog.Errorf("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the router service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				earlyLog.Errorf("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Router Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			runErr := app.Run(ctx)
			if runErr != nil {
				log.ErrorwCtx(ctx, "Application error", "error", runErr)
			}

			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
				if runErr == nil {
					runErr = err
				}
			}
			return runErr
		},
	}
}

// validateRulesCmd compiles every configured rule and schedule without
// starting anything. The first failure aborts with a non-zero exit.
func validateRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-rules",
		Short: "Compile configured rules and schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			n, err := validateDefinitions(cfg)
			if err != nil {
				earlyLog.Errorf("%v", err)
				return err
			}
			earlyLog.Infof("%d rules and schedules are valid", n)
			return nil
		},
	}
}

func validateDefinitions(cfg *config.Config) (int, error) {
	registry, err := rules.NewRegistry(logger.NopLogger())
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		known[t.ID] = true
	}

	count := 0
	for _, def := range cfg.Rules.Definitions {
		rule, err := rules.FromConfig(def)
		if err != nil {
			return count, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		if _, err := registry.Prepare(rule); err != nil {
			return count, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		for _, id := range def.Targets {
			if !known[id] {
				return count, fmt.Errorf("rule %s: unknown target %s", def.ID, id)
			}
		}
		count++
	}

	for _, sc := range cfg.Scheduler.Schedules {
		if _, err := scheduler.Validate(scheduler.FromConfig(sc)); err != nil {
			return count, fmt.Errorf("schedule %s: %w", sc.ID, err)
		}
		if !known[sc.Target] {
			return count, fmt.Errorf("schedule %s: unknown target %s", sc.ID, sc.Target)
		}
		count++
	}
	return count, nil
}
