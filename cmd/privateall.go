package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/usecase"
)

var privateAllCmd = &cobra.Command{
	Use:   "private-all",
	Short: "Sets every matching repository to private",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEnv(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		syncer, gw, err := e.syncer()
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

		// Visibility changes do not move the change-detection fingerprint,
		// so the cached Private flag may be stale; flip everything rather
		// than trusting it.
		ctx := context.Background()
		flipped := 0
		for _, snap := range result.Snapshots {
			if err := gw.SetPrivate(ctx, e.org, snap.Name, true); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot set %s private: %v\n", snap.Name, err)
				continue
			}
			flipped++
			fmt.Fprint(os.Stderr, ".")
		}
		fmt.Fprintln(os.Stderr)
		fmt.Printf("%d repos set to private\n", flipped)
	},
}

func init() {
	rootCmd.AddCommand(privateAllCmd)
}
