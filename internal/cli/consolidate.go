package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one sleep consolidation cycle",
		Long: "Cluster episodic memories accumulated since the last checkpoint " +
			"into semantic digests, decay edges, and archive stale memories. " +
			"Runs only inside the configured sleep window.",
		Run: runConsolidate,
	}

	cmd.Flags().Duration("budget", 0, "Wall-clock budget for the run (0 is unlimited)")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetDuration("budget")

	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	start := time.Now()
	rep, err := e.NightlyConsolidate(cmd.Context(), budget)
	if err != nil {
		exitErr("consolidate", err)
	}

	b, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(b))
	if rep.Ran {
		fmt.Printf("elapsed %s\n", time.Since(start).Round(time.Millisecond))
	}
}
