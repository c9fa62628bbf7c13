package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	ruleCmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage procedural rules",
	}

	addCmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add or refresh a standing rule",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRuleAdd,
	}
	addCmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all standing rules",
		Run:   runRuleList,
	}

	ruleCmd.AddCommand(addCmd, listCmd)
	RootCmd.AddCommand(ruleCmd)
}

func runRuleAdd(cmd *cobra.Command, args []string) {
	tagsStr, _ := cmd.Flags().GetString("tags")

	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	id, created, err := e.UpsertProceduralRule(cmd.Context(), strings.Join(args, " "), splitTags(tagsStr))
	if err != nil {
		exitErr("rule add", err)
	}
	if created {
		fmt.Printf("created rule %d\n", id)
	} else {
		fmt.Printf("refreshed rule %d\n", id)
	}
}

func runRuleList(cmd *cobra.Command, args []string) {
	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	rules, err := e.ListProceduralRules(cmd.Context())
	if err != nil {
		exitErr("rule list", err)
	}
	if len(rules) == 0 {
		fmt.Println("no rules")
		return
	}
	for _, r := range rules {
		line := fmt.Sprintf("%d\t%s", r.ID, r.Text)
		if len(r.Tags) > 0 {
			line += "\t[" + strings.Join(r.Tags, ",") + "]"
		}
		fmt.Println(line)
	}
}
