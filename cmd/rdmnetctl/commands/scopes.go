package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	scopesScope   string
	scopesBroker  string
	scopesTimeout time.Duration
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Add a scope and print its connection status",
	Long: `Add a scope, dial its broker, and print the resulting
connection state once the handshake settles. Useful as a smoke test
against a broker address before sending real RDM traffic with "get".`,
	RunE: runScopes,
}

func init() {
	scopesCmd.Flags().StringVar(&scopesScope, "scope", "default", "RDMnet scope to monitor")
	scopesCmd.Flags().StringVar(&scopesBroker, "broker", "", "static broker address host:port (required)")
	scopesCmd.Flags().DurationVar(&scopesTimeout, "timeout", 5*time.Second, "connect timeout")
	_ = scopesCmd.MarkFlagRequired("broker")
}

func runScopes(cmd *cobra.Command, args []string) error {
	sess, err := connectController(cfgFile, scopesScope, scopesBroker, scopesTimeout)
	if err != nil {
		return err
	}
	defer sess.Close()

	for _, st := range sess.ctrl.Scopes() {
		fmt.Printf("scope=%s state=%s broker_uid=%s\n", st.Scope, st.State, st.BrokerUID)
	}
	return nil
}
