// Command kcored drives the in-process kernel simulation: booting it
// from a task map, running ping-style benchmarks, and dumping
// scheduler/IPC state for inspection. Structurally modeled on
// ehrlich-b-go-ublk's cmd/ublk-mem, rebuilt on spf13/cobra per
// SPEC_FULL.md's domain-stack wiring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "kcored",
		Short: "Drive the kcore kernel simulation",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a kernel config YAML file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newBenchCmd())
	root.AddCommand(newInspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
