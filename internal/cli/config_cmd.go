package cli

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/zueira/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg
			if !reveal {
				c = redact(cfg)
			}
			data, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print keys and tokens in clear text")

	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues := config.Validate(&cfg)
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", issue)
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d issue(s) found", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	}
}

// redact returns a copy of c with credentials masked.
func redact(c config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Gateway.Auth.Token)
	mask(&c.LLM.APIKey)
	mask(&c.Tracing.APIKey)
	mask(&c.WhatsApp.APIKey)

	if len(c.LLM.Headers) > 0 {
		c.LLM.Headers = maps.Clone(c.LLM.Headers)
		for k := range c.LLM.Headers {
			c.LLM.Headers[k] = redacted
		}
	}
	return c
}
