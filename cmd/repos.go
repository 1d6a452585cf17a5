package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/usecase"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Lists the matching repositories from the cache",
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

		markdown, _ := cmd.Flags().GetBool("markdown")
		if markdown {
			fmt.Printf("# Repositories for %s/%s\n\n", e.org, e.prefix)
			for _, snap := range result.Snapshots {
				fmt.Printf("- [%s](%s)\n", snap.Name, snap.HTMLURL)
			}
			return
		}
		fmt.Printf("%d repos found for %s/%s\n", len(result.Snapshots), e.org, e.prefix)
		for _, snap := range result.Snapshots {
			visibility := "public"
			if snap.Private {
				visibility = "private"
			}
			fmt.Printf("%-50s %-8s %s\n", snap.Name, visibility, snap.PushedAt.Local().Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	rootCmd.AddCommand(reposCmd)
	reposCmd.Flags().Bool("markdown", false, "Emit a Markdown list with links")
}
