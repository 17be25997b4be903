package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/socialpilot/internal/config"
	"github.com/xkilldash9x/socialpilot/internal/observability"
	"github.com/xkilldash9x/socialpilot/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// automationFactory builds the engine for a command. Tests replace it with a fake.
type automationFactory func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (Automation, error)

// newAutomation is the production factory.
var newAutomation automationFactory = func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (Automation, error) {
	components, err := service.NewComponents(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return service.NewAutomation(components, logger), nil
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Info("Operation cancelled.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		observability.Sync()
		return err
	}
	observability.Sync()
	return nil
}

// NewRootCommand builds a fresh command tree so flag state never leaks between runs.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	var headless bool

	root := &cobra.Command{
		Use:           "socialpilot",
		Short:         "Socialpilot drives a real browser to publish, engage and read profiles on social platforms.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "socialpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting socialpilot.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().BoolVar(&headless, "headless", false, "run Chrome without a window (not allowed for session setup)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newSessionCmd())
	root.AddCommand(newPublishCmd())
	root.AddCommand(newScrapeCmd())
	root.AddCommand(newEngageCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// initializeConfig reads the config file, if any, and environment overrides.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SOCIALPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFrom returns the config stored by PersistentPreRunE.
func configFrom(cmd *cobra.Command) (config.Interface, error) {
	cfg, ok := cmd.Context().Value(configKey).(config.Interface)
	if !ok {
		return nil, errors.New("configuration was not loaded")
	}
	return cfg, nil
}

// withAutomation builds the engine, runs fn, and always shuts the engine down.
func withAutomation(cmd *cobra.Command, fn func(ctx context.Context, a Automation) error) (err error) {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := observability.GetLogger()

	a, err := newAutomation(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		// The command context may already be cancelled.
		if serr := a.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			logger.Warn("Shutdown did not complete cleanly.", zap.Error(serr))
		}
	}()
	return fn(ctx, a)
}
