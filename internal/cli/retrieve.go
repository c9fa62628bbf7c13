package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve [query]",
		Short: "Retrieve ranked memories for a query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRetrieve,
	}

	cmd.Flags().IntP("limit", "l", 0, "Result limit (0 uses the configured default)")
	cmd.Flags().Float64("drift", -1, "Override drift probability for this query (-1 keeps the configured value)")
	cmd.Flags().Bool("touch", true, "Record last-accessed for returned memories")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	drift, _ := cmd.Flags().GetFloat64("drift")
	touch, _ := cmd.Flags().GetBool("touch")

	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	if drift >= 0 {
		e.SetDriftProbability(drift)
	}

	results, err := e.RetrieveContext(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		exitErr("retrieve", err)
	}

	if touch && len(results) > 0 {
		ids := make([]int64, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		e.NoteAccess(cmd.Context(), ids)
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
