package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Prints your GitHub API rate limit stats",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEnv(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		gw, err := e.gateway()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		quota, err := gw.RateLimit(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Core reset time (local timezone): %s\n", quota.ResetAt.Local().Format(time.RFC1123))
		fmt.Printf("Core remaining / limit: %d / %d\n", quota.Remaining, quota.Limit)
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
}
