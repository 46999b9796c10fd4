package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boxlite/boxlite/imagestore"
	"github.com/boxlite/boxlite/progress"
)

func pullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull IMAGE [IMAGE...]",
		Short: "Pull OCI image(s) into the local cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, ref := range args {
				tracker := progress.NewTracker(func(e imagestore.Event) {
					switch e.Phase {
					case imagestore.PhasePull:
						fmt.Printf("Pulling %s (%d layers)\n", e.Reference, e.Total)
					case imagestore.PhaseLayer:
						fmt.Printf("  [%d/%d] %s done\n", e.Index+1, e.Total, e.Digest)
					case imagestore.PhaseDone:
						fmt.Printf("Done: %s\n", e.Reference)
					}
				})
				if _, err := engine.PullWithProgress(ctx, ref, tracker); err != nil {
					return fmt.Errorf("pull %s: %w", ref, err)
				}
			}
			return nil
		},
	}
}

func imagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "images",
		Aliases: []string{"image", "ls-images"},
		Short:   "List cached images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			imgs, err := engine.ListImages(cmd.Context())
			if err != nil {
				return err
			}
			if len(imgs) == 0 {
				fmt.Println("No images found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REFERENCE\tDIGEST\tLAYERS\tPULLED")
			for _, img := range imgs {
				digest := strings.TrimPrefix(string(img.ManifestDigest), "sha256:")
				if len(digest) > 19 { //nolint:mnd
					digest = digest[:19]
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					img.Reference, digest, len(img.LayerDigests), img.PulledAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func gcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reclaim unreferenced image cache entries and orphaned box directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := engine.RunGC(cmd.Context()); err != nil {
				return fmt.Errorf("gc: %w", err)
			}
			fmt.Println("GC complete.")
			return nil
		},
	}
}

func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
