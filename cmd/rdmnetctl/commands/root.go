// Package commands implements rdmnetctl's cobra command tree.
package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rdmnetctl",
	Short: "RDMnet controller example CLI",
	Long: `rdmnetctl is a minimal RPT-controller client: it adds a scope,
sends RDM commands to a responder, and prints the result.

Use "rdmnetctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(scopesCmd)
}
