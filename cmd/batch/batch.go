package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoosonics/sawcall-go/internal/analysis"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
)

// Command creates the batch command for draining the processing queue.
func Command(settings *conf.Settings) *cobra.Command {
	var inputDir string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every pending recording",
		Long: `Drain the processing queue, running saw-call detection on every pending
recording in upload order. With --input, audio files from a directory are
registered first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), settings, inputDir)
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Directory of audio files to register before draining")
	return cmd
}

func runBatch(ctx context.Context, settings *conf.Settings, inputDir string) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	pipeline := analysis.NewPipeline(store, settings, nil)

	if inputDir != "" {
		registered, err := registerDirectory(ctx, pipeline, inputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %d recording(s) from %s\n", registered, inputDir)
	}

	scheduler := analysis.NewScheduler(pipeline, settings, nil)
	processed, failed, err := scheduler.ProcessAllPending(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Batch complete: %d processed, %d failed\n", processed, failed)
	return nil
}

// registerDirectory registers every supported audio file directly inside dir.
func registerDirectory(ctx context.Context, pipeline *analysis.Pipeline, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading input directory %s: %w", dir, err)
	}

	registered := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".wav" && ext != ".flac" {
			continue
		}
		if _, _, err := pipeline.RegisterFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}
