package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/annstore/internal/config"
	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/store"
)

// newMigrateCmd groups the start/status operations over the migration
// controller. The controller lives in the process that started it, so
// this CLI's 'migrate start' blocks and polls status until the
// migration finishes or SIGINT/SIGTERM requests cancellation -- there
// is no standalone 'migrate stop' because a second process has no
// handle to a controller running in the first. The dispatch protocol's
// MIGRATE_STOP request kind is the one that can act on a migration
// still in flight, from within the same 'annstore serve' process.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Re-embed and rebuild the index under a different embedder",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Re-embed every document under the target embedder and rebuild the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			targetType, _ := cmd.Flags().GetString("target-type")
			targetModel, _ := cmd.Flags().GetString("target-model")
			apiKey, _ := cmd.Flags().GetString("api-key")

			ctx := context.Background()
			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			targetCfg := *p.cfg
			targetCfg.Embedder.Type = config.EmbedderType(targetType)
			targetCfg.Embedder.Local.ModelName = targetModel
			targetCfg.Embedder.OpenAI.ModelName = targetModel
			targetCfg.Embedder.OpenAI.APIKey = apiKey

			target, err := embed.NewFromConfig(targetCfg)
			if err != nil {
				return fmt.Errorf("constructing target embedder: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				if _, ok := <-sigCh; ok {
					p.migration.Stop()
				}
			}()

			if err := p.migration.Start(ctx, target); err != nil {
				signal.Stop(sigCh)
				return fmt.Errorf("starting migration: %w", err)
			}

			for p.migration.State() != "idle" {
				time.Sleep(50 * time.Millisecond)
			}
			signal.Stop(sigCh)
			close(sigCh)
			status := p.migration.Status()

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(status)
			} else if status.Error != "" {
				fmt.Printf("Migration failed: %s\n", status.Error)
			} else {
				fmt.Printf("Migrated %d/%d documents. Complete: %v\n", status.Processed, status.Total, status.IsComplete)
			}

			// Only persist the new embedder once it is actually live: on
			// error or cancellation the indexer stays bound to the old
			// embedder, so saving the target config here would point the
			// next run at an embedder whose vectors the graph doesn't hold.
			if status.IsComplete {
				if err := targetCfg.Save(configPath(root)); err != nil {
					return fmt.Errorf("saving updated config: %w", err)
				}
			}
			return nil
		},
	}
	startCmd.Flags().String("target-type", "local", "Embedder type to migrate to: local or openai")
	startCmd.Flags().String("target-model", "", "Model name for the target embedder")
	startCmd.Flags().String("api-key", "", "API key, when target-type is openai")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print this process's migration status (not persisted; a fresh process reports idle)",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ctx := context.Background()
			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			status := p.migration.Status()
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(status)
			} else {
				fmt.Printf("state=%s processed=%d/%d complete=%v\n", p.migration.State(), status.Processed, status.Total, status.IsComplete)
			}
			return nil
		},
	}

	cmd.AddCommand(startCmd, statusCmd)
	return cmd
}

func configPath(root string) string {
	return filepath.Join(store.LocalPath(root), configFileName)
}
