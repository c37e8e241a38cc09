package file

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoosonics/sawcall-go/internal/analysis"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
)

// Command creates the file command for processing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Process a single audio recording",
		Long:  `Register a single audio file, run saw-call detection on it, and print the detected events.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd.Context(), settings, args[0])
		},
	}
	return cmd
}

func runFile(ctx context.Context, settings *conf.Settings, path string) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	pipeline := analysis.NewPipeline(store, settings, nil)

	rec, replaced, err := pipeline.RegisterFile(ctx, path)
	if err != nil {
		return err
	}
	if replaced {
		fmt.Printf("Replaced an earlier upload of %s\n", rec.FileName)
	}

	outcome, err := pipeline.Process(ctx, rec.ID)
	if err != nil {
		return err
	}
	if outcome != analysis.OutcomeProcessed {
		return fmt.Errorf("recording %d was not processed (%s)", rec.ID, outcome)
	}

	events, err := store.DetectedEventsFor(rec.ID)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d saw call(s)\n", rec.FileName, len(events))
	for _, e := range events {
		fmt.Printf("  start=%s, end=%s, freq=%.2f, mag=%.2f, impulses=%d\n",
			e.StartTimestamp, e.EndTimestamp, e.PeakFrequency, e.PeakMagnitude, e.ImpulseCount)
	}
	return nil
}
