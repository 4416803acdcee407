package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/annstore/internal/config"
	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/graph"
	"github.com/nvandessel/annstore/internal/index"
	"github.com/nvandessel/annstore/internal/migration"
	"github.com/nvandessel/annstore/internal/store"
)

var version = "0.1.0-dev"

const configFileName = "config.yaml"

func main() {
	rootCmd := &cobra.Command{
		Use:   "annstore",
		Short: "A persistent approximate-nearest-neighbor vector index",
		Long: `annstore indexes text documents by embedding similarity using an
HNSW graph, persists the graph incrementally as it grows, and can
re-embed and rebuild the whole index under a new embedding model
without losing the original documents.`,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for scripted consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAddCmd(),
		newSearchCmd(),
		newListCmd(),
		newMigrateCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("annstore version %s\n", version)
			}
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize an annstore index in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			dir := store.LocalPath(root)

			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			if err := store.EnsureGitignore(dir); err != nil {
				return fmt.Errorf("failed to write .gitignore: %w", err)
			}

			configPath := filepath.Join(dir, configFileName)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Default().Save(configPath); err != nil {
					return fmt.Errorf("failed to write %s: %w", configFileName, err)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"status": "initialized", "path": dir})
			} else {
				fmt.Printf("Initialized %s\n", dir)
			}
			return nil
		},
	}
}

// project bundles the open handles a command needs, closed via project.Close.
type project struct {
	store     *store.Store
	cfg       *config.Config
	indexer   *index.Indexer
	migration *migration.Controller
}

func (p *project) Close() error {
	return p.store.Close()
}

func openProject(ctx context.Context, root string) (*project, error) {
	dir := store.LocalPath(root)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not initialized; run 'annstore init' first", dir)
	}

	cfg, err := config.Load(filepath.Join(dir, configFileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	s, err := store.Open(store.Options{Dir: dir})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedder, err := embed.NewFromConfig(*cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("constructing embedder: %w", err)
	}

	graphCfg := graph.Config{
		M:               cfg.Graph.M,
		EfConstruction:  cfg.Graph.EfConstruction,
		EfSearch:        cfg.Graph.EfSearch,
		LevelMultiplier: cfg.Graph.LevelMultiplier,
	}

	ix, err := index.New(ctx, s, embedder, graphCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("loading index: %w", err)
	}

	mc := migration.New(ix, cfg.MigrationBatchSize)

	return &project{store: s, cfg: cfg, indexer: ix, migration: mc}, nil
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Embed and index a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx := context.Background()
			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			doc, err := p.indexer.AddDocument(ctx, args[0], nil)
			if err != nil {
				return fmt.Errorf("adding document: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(doc)
			} else {
				fmt.Printf("Indexed document %s\n", doc.ID)
			}
			return nil
		},
	}
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the most similar indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			k, _ := cmd.Flags().GetInt("k")
			bruteForce, _ := cmd.Flags().GetBool("brute-force")

			ctx := context.Background()
			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			hits, err := p.indexer.Search(ctx, args[0], k, bruteForce)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(hits)
				return nil
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for i, h := range hits {
				fmt.Printf("%d. [%.4f] %s\n", i+1, h.Score, h.Document.Text)
			}
			return nil
		},
	}
	cmd.Flags().Int("k", 5, "Number of results to return")
	cmd.Flags().Bool("brute-force", false, "Use the exact brute-force search instead of the HNSW graph")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx := context.Background()
			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			docs, err := p.indexer.GetAllDocuments(ctx)
			if err != nil {
				return fmt.Errorf("listing documents: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{"documents": docs, "count": len(docs)})
				return nil
			}
			fmt.Printf("%d documents:\n\n", len(docs))
			for i, d := range docs {
				fmt.Printf("%d. %s  %s\n", i+1, d.ID, d.Text)
			}
			return nil
		},
	}
}
