// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// cfg is loaded by loadConfig before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dissect",
	Short: "Dissect - Ethernet/IPv4/TCP/UDP/ICMP frame dissector and capture file writer",
	Long: `Dissect decodes raw Ethernet II frames into structured layers
(Ethernet, IPv4, TCP/UDP/ICMP, best-effort text payload) and records
frames to libpcap capture files for later dissection.

Examples:
  dissect decode capture.pcap                        # Print one line per TCP/UDP/ICMP frame
  dissect decode -f json --protocol tcp capture.pcap # Only TCP, as JSON
  dissect decode --write tcp.pcap --port 80 all.pcap # Re-record frames on port 80
  dissect hex 667788...                              # Dissect a single hex-encoded frame
  dissect record --out out.pcap <hex> <hex>          # Write hex-encoded frames to a capture file
  dissect validate -c dissect.yml                    # Check a configuration file`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and DISSECT_* environment only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(hexCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the configuration and initializes the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
		if err := c.Validate(); err != nil {
			return err
		}
	}

	if err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}
