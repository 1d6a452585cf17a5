package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/usecase"
)

var completionTimesCmd = &cobra.Command{
	Use:   "completion-times",
	Short: "Summarizes when matching repositories were last pushed",
	Long: `Reports push-time statistics over the matching repositories: earliest and
latest pushes, and, given --deadline, the median and 90th-percentile lead
times plus the repositories pushed after the deadline.`,
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

		deadlineStr, _ := cmd.Flags().GetString("deadline")
		deadline, err := parseDeadline(deadlineStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		result, err := refreshForTool(e, syncer, usecase.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		report, err := usecase.CompletionTimes(result.Snapshots, deadline)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%d matching repos found for %s/%s (%d with pushes)\n",
			report.Total, e.org, e.prefix, report.WithPushes)
		if report.WithPushes > 0 {
			fmt.Printf("earliest push: %s\n", report.Earliest.Local().Format(time.RFC1123))
			fmt.Printf("latest push:   %s\n", report.Latest.Local().Format(time.RFC1123))
		}
		if !deadline.IsZero() {
			fmt.Printf("median lead before deadline: %s\n", report.MedianLead.Round(time.Minute))
			fmt.Printf("p90 lead before deadline:    %s\n", report.P90Lead.Round(time.Minute))
			if len(report.Late) > 0 {
				fmt.Printf("%d repos pushed after the deadline:\n", len(report.Late))
				for _, name := range report.Late {
					fmt.Printf("  %s\n", name)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(completionTimesCmd)
	completionTimesCmd.Flags().String("deadline", "", "Assignment deadline (RFC3339 or YYYY-MM-DD, local time)")
}
