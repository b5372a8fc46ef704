// Command fleetd runs the fleet supervisor of spec §2: one concurrent
// worker per configured node, startup reconciliation against the
// marketplace, a periodic fleet printer, and hot config reload. It also
// exposes the operator escape hatches carried over from the original
// implementation's standalone scripts (§12): amnesty and recreate-orders.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "fleetd",
		Short: "Supervises a fleet of work nodes on a decentralized compute marketplace",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the base config file (default: search ./config.yaml, ./configs, /etc/fleetd)")

	root.AddCommand(newRunCmd(), newAmnestyCmd(), newRecreateOrdersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
