// Command llrpctl runs one LLRP discovery cycle against a network
// interface and prints every component it finds.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/rdmnetcore/pkg/config"
	"github.com/marmos91/rdmnetcore/pkg/rdmnet"
)

var (
	iface       string
	manufFilter uint16
	timeout     time.Duration
	cfgFile     string
)

var rootCmd = &cobra.Command{
	Use:   "llrpctl",
	Short: "One-shot LLRP discovery run",
	Long: `llrpctl opens an LLRP manager on one interface, runs a
single discovery cycle to completion or timeout, and prints every
component found.

Example:
  llrpctl --iface eth0 --timeout 10s`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	rootCmd.Flags().StringVar(&iface, "iface", "", "network interface to discover on (required)")
	rootCmd.Flags().Uint16Var(&manufFilter, "manufacturer-filter", 0, "probe-request filter bits: 1 = client TCP connection inactive, 2 = brokers only (0 = unfiltered)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to let the discovery cycle run")
	_ = rootCmd.MarkFlagRequired("iface")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("llrpctl: load config: %w", err)
		}
		cfg = loaded
	}

	ctx, err := rdmnet.Init(*cfg)
	if err != nil {
		return fmt.Errorf("llrpctl: init: %w", err)
	}
	defer ctx.Deinit()

	lm := ctx.NewLLRPManager(rdmnet.NewCID(), rdmnet.UID{Manufacturer: 0x7ff0, Device: uint32(time.Now().UnixNano())}, iface)
	defer lm.Close()

	if err := lm.Start(manufFilter); err != nil {
		return fmt.Errorf("llrpctl: start discovery: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for lm.Running() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	found := lm.Discovered()
	lm.Stop()

	if len(found) == 0 {
		fmt.Println("no components found")
		return nil
	}
	for _, t := range found {
		fmt.Printf("uid=%s cid=%s component_type=%d hw_addr=%x\n", t.UID, t.CID, t.ComponentType, t.HardwareAddr)
	}
	return nil
}
