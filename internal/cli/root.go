package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "livechat",
		Short: "livechat: support chat widget and agent desk",
		Long:  "livechat runs a terminal chat widget against a support chat API, and the desk server agents answer from.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			envErrs := loadDotEnv(".env", paths.Env)

			level := logLevel
			if level == "" {
				level = os.Getenv("LIVECHAT_LOG_LEVEL")
			}
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			for _, err := range envErrs {
				log.Warn().Err(err).Msg("failed to load .env file")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.livechat/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWidgetCmd())
	cmd.AddCommand(newDeskCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMessageCmd())

	return cmd
}

// loadDotEnv loads each existing file into the environment without
// overriding variables that are already set.
func loadDotEnv(files ...string) []error {
	var errs []error
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
		}
	}
	return errs
}

// loadConfig loads the config file, applies command-line overrides and
// validates the result. Without --log-level the root logger is rebuilt from
// the logging section.
func loadConfig(override func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if override != nil {
		override(&cfg)
	}
	if logLevel == "" {
		log = logging.NewStyled(nil, cfg.Logging.Level, cfg.Logging.ConsoleStyle)
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

func levelFor(cfg config.Config) string {
	if logLevel != "" {
		return logLevel
	}
	return cfg.Logging.Level
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
