// Package cli implements the recall CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage/sqlite"
)

var (
	dbPath     string
	configPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Persistent layered memory for a conversational agent",
	Long: "recall maintains an agent's memory substrate: episodic commits, " +
		"semantic digests from sleep consolidation, procedural rules, and an " +
		"associative graph, all in a single SQLite file.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $RECALL_DB_PATH or ./recall.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file overlaying environment variables")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load(), nil
}

// openEngine builds the full engine stack from configuration. The returned
// closer releases the underlying store.
func openEngine() (*engine.Engine, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	store, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}

	var (
		embedder   llm.Embedder
		summarizer llm.Summarizer
	)
	switch cfg.Embedding.Provider {
	case "mock":
		embedder = llm.NewMockEmbedder(cfg.Embedding.Dimension)
		summarizer = llm.ConcatSummarizer{}
	default:
		client := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:      cfg.Embedding.BaseURL,
			EmbedModel:   cfg.Embedding.EmbedModel,
			SummaryModel: cfg.Embedding.SummaryModel,
			Dimension:    cfg.Embedding.Dimension,
		})
		embedder = client
		summarizer = client
	}

	e, err := engine.New(store, embedder, summarizer, cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return e, store.Close, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
