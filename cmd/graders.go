package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/roster"
	"github.com/classtools/classroom-sync/internal/usecase"
)

var gradersCmd = &cobra.Command{
	Use:   "graders",
	Short: "Randomly assigns graders to student submissions",
	Long: `Divides the matching student repositories among the configured graders and
prints the assignment as Markdown. The shuffle is seeded from the repository
listing, so rerunning over an unchanged class reproduces the same
assignment; pass --seed to override.`,
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

		graderList, _ := cmd.Flags().GetStringSlice("graders")
		if len(graderList) == 0 {
			graderList = e.cfg.Graders
		}
		if len(graderList) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no graders given: use --graders or set them in the config file")
			os.Exit(1)
		}

		result, err := refreshForTool(e, syncer, usecase.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "%d repos in the initial search\n", len(result.Snapshots))

		seed, _ := cmd.Flags().GetInt64("seed")
		if !cmd.Flags().Changed("seed") {
			seed = usecase.AssignmentSeed(result.Snapshots)
		}

		report, err := usecase.AssignGraders(result.Snapshots, e.prefix, graderList, e.cfg.Ignore, seed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, w := range report.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}

		rosterPath, _ := cmd.Flags().GetString("students")
		if rosterPath == "" {
			rosterPath = e.cfg.RosterPath
		}
		var students *roster.Roster
		if rosterPath != "" {
			students, err = roster.Load(rosterPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: cannot load roster %s: %v\n", rosterPath, err)
			}
		}

		describe := func(id string) string {
			if students == nil {
				return id
			}
			return students.Describe(id)
		}

		fmt.Printf("# Grade assignments for %s\n", e.prefix)
		fmt.Printf("%d repos are ready to grade\n\n", len(report.Submissions))

		graders := make([]string, 0, len(report.Assignments))
		for g := range report.Assignments {
			graders = append(graders, g)
		}
		sort.Slice(graders, func(i, j int) bool {
			return strings.ToLower(graders[i]) < strings.ToLower(graders[j])
		})
		for _, grader := range graders {
			assigned := report.Assignments[grader]
			fmt.Printf("## %s (%d total)\n", grader, len(assigned))
			for _, student := range assigned {
				repos := report.Submissions[student]
				if len(repos) == 1 {
					fmt.Printf("- [%s](%s) - %s\n", student, repos[0].HTMLURL, describe(student))
				} else {
					fmt.Printf("- **Multiple repos for %s** - %s\n", student, describe(student))
					for _, r := range repos {
						fmt.Printf("  - [%s](%s)\n", r.Name, r.HTMLURL)
					}
				}
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(gradersCmd)
	gradersCmd.Flags().StringSlice("graders", nil, "GitHub IDs of the grading staff (default from config)")
	gradersCmd.Flags().String("students", "", "CSV roster with student information (default from config)")
	gradersCmd.Flags().Int64("seed", 0, "Shuffle seed (default derived from the repo listing)")
}
