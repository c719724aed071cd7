// Command rdmnetctl is an example RPT-controller CLI: it adds a scope,
// sends one RDM command, prints the response, and exits. It exists to
// exercise pkg/rdmnet from outside a test binary, not as an
// operations tool for a long-running controller (for that, wire
// pkg/rdmnet/controlapi into a daemon instead).
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/rdmnetcore/cmd/rdmnetctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
