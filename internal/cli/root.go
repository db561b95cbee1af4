package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/logging"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	// loaded by the root command before any subcommand runs
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zueira",
		Short: "zueira, a WhatsApp joke bot",
		Long:  "zueira answers WhatsApp messages with jokes from an LLM, keeps per-chat history and records feedback on its replies.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			if envFile != "" {
				paths.Env = envFile
			}

			if err := config.LoadDotEnv(".env", paths.Env); err != nil {
				return err
			}

			cfg, err = config.Load(paths.Config)
			if err != nil {
				return fmt.Errorf("loading %s: %w", paths.Config, err)
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			log = logging.NewFromOptions(logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.zueira/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default ~/.zueira/.env)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newFeedbackCmd())

	return cmd
}

// validate reports every config issue and fails when there is any.
func validate(c *config.Config) error {
	issues := config.Validate(c)
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
