package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show substrate statistics and the consolidation checkpoint",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	stats, err := e.StatsSnapshot(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	cp, err := e.Checkpoint(cmd.Context())
	if err != nil {
		exitErr("checkpoint", err)
	}

	out := struct {
		engine.Stats
		Checkpoint types.Checkpoint `json:"checkpoint"`
	}{Stats: stats, Checkpoint: cp}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
