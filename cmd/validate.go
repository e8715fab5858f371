package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/sourcewatch/internal/reporter"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load the configuration file (plus SOURCEWATCH_* environment overrides),
apply defaults, check every reporter can be built, and print the result as YAML.

Examples:
  sourcewatch validate -c config.yml
  SOURCEWATCH_QUEUE_CAPACITY=4096 sourcewatch validate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout())
	},
}

func runValidate(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for i, rc := range cfg.Reporters {
		r, err := reporter.New(rc.Type, rc.Options)
		if err != nil {
			return fmt.Errorf("reporters[%d]: %w", i, err)
		}
		_ = r.Close()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"sourcewatch": cfg}); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
