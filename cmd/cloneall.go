package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/gitutil"
	"github.com/classtools/classroom-sync/internal/usecase"
)

var cloneAllCmd = &cobra.Command{
	Use:   "clone-all",
	Short: "Clones every matching repository into a directory",
	Long: `Clones every repository matching the prefix into the output directory,
one subdirectory per repository. Repositories already present are pulled
instead. Individual clone failures are reported and skipped.`,
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

		result, err := refreshForTool(e, syncer, usecase.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d repos found for %s/%s\n", len(result.Snapshots), e.org, e.prefix)

		outDir, _ := cmd.Flags().GetString("out")
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", outDir, err)
			os.Exit(1)
		}

		cloner := gitutil.NewCloner(e.token, e.logger)
		ctx := context.Background()
		failures := 0
		for _, snap := range result.Snapshots {
			if err := cloner.CloneOrPull(ctx, snap.CloneURL, snap.Name, outDir); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				failures++
			}
		}
		if failures > 0 {
			fmt.Fprintf(os.Stderr, "%d of %d repos failed\n", failures, len(result.Snapshots))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(cloneAllCmd)
	cloneAllCmd.Flags().String("out", ".", "Destination directory for the clones")
}
