package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/usecase"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Brings the local repository cache up to date",
	Long: `Refreshes the cache for the given organization and prefix: enumerates the
matching repositories, fetches details only for the ones that changed since
the last run, and rewrites the cache file. Every other command refreshes
implicitly; run this directly to warm the cache or to force a full rescan.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEnv(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		syncer, _, err := e.syncer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		force, _ := cmd.Flags().GetBool("force")
		collab, _ := cmd.Flags().GetBool("collaborators")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		result, err := syncer.Refresh(context.Background(), e.org, e.prefix, usecase.Options{
			ForceFull:            force,
			IncludeCollaborators: collab,
			Concurrency:          concurrency,
			Timeout:              timeout,
		})
		if err != nil {
			var partial *usecase.PartialError
			if errors.As(err, &partial) {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", partial)
				for _, name := range partial.Unprocessed {
					fmt.Fprintf(os.Stderr, "  not processed: %s\n", name)
				}
				reportResult(partial.Result, e)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
			os.Exit(1)
		}
		reportResult(result, e)
	},
}

func reportResult(result *usecase.Result, e *env) {
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "Skipped %s: %v\n", skipped.Name, skipped.Err)
	}
	source := "refreshed"
	if result.FromCache {
		source = "cached, current"
	}
	fmt.Printf("%d repos for %s/%s (%s)\n", len(result.Snapshots), e.org, e.prefix, source)
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().Bool("force", false, "Ignore cache fingerprints and re-fetch everything")
	refreshCmd.Flags().Bool("collaborators", false, "Also fetch each repository's collaborator list")
	refreshCmd.Flags().Duration("timeout", 0, "Overall refresh deadline (e.g. 5m); 0 means none")
	refreshCmd.Flags().Int("concurrency", 0, "Parallel detail fetches (default 4)")
	_ = refreshCmd.Flags().MarkHidden("concurrency")
}

// refreshForTool runs the implicit refresh that read-only commands share,
// downgrading a partial result to a warning so the tool can still report
// whatever is available.
func refreshForTool(e *env, syncer *usecase.Syncer, opts usecase.Options) (*usecase.Result, error) {
	result, err := syncer.Refresh(context.Background(), e.org, e.prefix, opts)
	if err != nil {
		var partial *usecase.PartialError
		if errors.As(err, &partial) {
			fmt.Fprintf(os.Stderr, "Warning: %v (continuing with partial data)\n", partial)
			return partial.Result, nil
		}
		return nil, err
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "Warning: skipped %s: %v\n", skipped.Name, skipped.Err)
	}
	return result, nil
}

// parseDeadline parses a --deadline value in the local timezone.
func parseDeadline(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse deadline %q (use RFC3339 or YYYY-MM-DD)", s)
}
