package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [text]",
		Short: "Record conversational turns and commit them as one episode",
		Long: "Record one turn from the positional args, or one turn per stdin " +
			"line. A stdin line may carry its own role as \"role: text\". The " +
			"short-term buffer lives in-process, so the episode is committed " +
			"before the command exits.",
		Run: runRecord,
	}

	cmd.Flags().StringP("role", "r", "user", "Speaker role for the recorded turns")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	tagsStr, _ := cmd.Flags().GetString("tags")
	tags := splitTags(tagsStr)

	e, closeStore, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closeStore()

	turns := 0
	if len(args) > 0 {
		e.RecordShortTerm(role, strings.Join(args, " "), tags)
		turns++
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lineRole, text := role, line
			if i := strings.Index(line, ": "); i > 0 && !strings.ContainsRune(line[:i], ' ') {
				lineRole, text = line[:i], line[i+2:]
			}
			e.RecordShortTerm(lineRole, text, tags)
			turns++
		}
		if err := scanner.Err(); err != nil {
			exitErr("read stdin", err)
		}
	}

	if turns == 0 {
		exitErr("record", fmt.Errorf("no turns given (positional arg or stdin)"))
	}

	id, created, err := e.CommitEpisodeIfNeeded(cmd.Context())
	if err != nil {
		exitErr("commit", err)
	}
	if !created {
		fmt.Println("nothing to commit")
		return
	}
	fmt.Printf("committed episode %d (%d turns)\n", id, turns)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
