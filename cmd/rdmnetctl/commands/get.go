package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/rdmnetcore/pkg/rdmnet"
)

var (
	getScope   string
	getBroker  string
	getUID     string
	getPID     uint16
	getTimeout time.Duration
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Send an RDM GET command and print the response",
	Long: `Add a scope, dial a broker, send one RDM GET_COMMAND to a
responder, and print whatever comes back.

Example:
  rdmnetctl get --broker 192.0.2.10:8888 --uid 7a70:00000001 --pid 0x0060`,
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVar(&getScope, "scope", "default", "RDMnet scope to monitor")
	getCmd.Flags().StringVar(&getBroker, "broker", "", "static broker address host:port (required)")
	getCmd.Flags().StringVar(&getUID, "uid", "", "responder UID, manuf:device hex (required)")
	getCmd.Flags().Uint16Var(&getPID, "pid", 0, "RDM parameter ID, e.g. 0x0060 (required)")
	getCmd.Flags().DurationVar(&getTimeout, "timeout", 5*time.Second, "connect/response timeout")
	_ = getCmd.MarkFlagRequired("broker")
	_ = getCmd.MarkFlagRequired("uid")
	_ = getCmd.MarkFlagRequired("pid")
}

func runGet(cmd *cobra.Command, args []string) error {
	destUID, err := rdmnet.ParseUID(getUID)
	if err != nil {
		return err
	}

	sess, err := connectController(cfgFile, getScope, getBroker, getTimeout)
	if err != nil {
		return err
	}
	defer sess.Close()

	seq, err := sess.ctrl.SendRDMCommand(getScope, destUID, rdmnet.CommandClassGetCommand, getPID, nil)
	if err != nil {
		return fmt.Errorf("rdmnetctl: send: %w", err)
	}

	select {
	case msg := <-sess.cb.responses:
		fmt.Printf("response to seq=%d: response_type=0x%02x pid=0x%04x data=%x\n", seq, uint8(msg.ResponseType), msg.PID, msg.ParameterData)
	case msg := <-sess.cb.notifications:
		fmt.Printf("unsolicited notification: pid=0x%04x data=%x\n", msg.PID, msg.ParameterData)
	case <-time.After(getTimeout):
		return fmt.Errorf("rdmnetctl: no response within %s", getTimeout)
	}
	return nil
}
