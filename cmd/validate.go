package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file with defaults and DISSECT_* environment
overrides applied, and report whether it is valid.

Examples:
  dissect validate dissect.yml
  dissect validate -c dissect.yml
  DISSECT_OUTPUT_FORMAT=json dissect validate`,
	Args: cobra.MaximumNArgs(1),
	// The configuration under test must not abort the command before it runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) == 1 {
			path = args[0]
		}
		return runValidate(path, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	filter := "none"
	if c.Filter.Protocol != "" || c.Filter.Port != 0 {
		filter = fmt.Sprintf("protocol=%q port=%d", c.Filter.Protocol, c.Filter.Port)
	}
	fmt.Fprintf(out, "VALID: log=%s format=%s payload=%t link_type=%d filter=%s\n",
		c.Log.Level,
		c.Output.Format,
		c.Decoder.Payload,
		c.Capture.LinkType,
		filter,
	)
	return nil
}
