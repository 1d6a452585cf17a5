package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/classtools/classroom-sync/internal/usecase"
)

var eventTimesCmd = &cobra.Command{
	Use:   "event-times repo [repo...]",
	Short: "Prints push-event timestamps for the named repositories",
	Long: `Fetches the push-event feed for each named repository and prints a table
of who pushed which commit when. Useful for investigating late submissions.
Output is plain text by default or a LaTeX table with --latex.`,
	Args: cobra.MinimumNArgs(1),
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

		useLatex, _ := cmd.Flags().GetBool("latex")
		longtable, _ := cmd.Flags().GetBool("longtable")
		tiny, _ := cmd.Flags().GetBool("tiny")

		reports, err := syncer.EventTimes(context.Background(), e.org, e.prefix, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, report := range reports {
			if report.NewCount > 0 {
				fmt.Fprintf(os.Stderr, "%s: %d pushes since last report\n", report.Repo, report.NewCount)
			}
			if useLatex || longtable {
				printLatexEvents(report.Repo, report, longtable, tiny)
			} else {
				printPlainEvents(report.Repo, report)
			}
			fmt.Println()
		}
	},
}

func printPlainEvents(repo string, report usecase.RepoEvents) {
	fmt.Printf("Events for %s\n", repo)
	for _, ev := range report.Events {
		date := ev.CreatedAt.Local().Format("2006-01-02 15:04:05 MST")
		for _, c := range ev.Commits {
			fmt.Printf("%-20s %s  %-50s %s\n", ev.Actor, shortSHA(c.SHA), firstLine(c.Message), date)
		}
	}
}

func printLatexEvents(repo string, report usecase.RepoEvents, longtable, tiny bool) {
	label := "events-" + repo
	if tiny {
		fmt.Println("{\\footnotesize")
	}
	if longtable {
		fmt.Println("\\begin{longtable}{llp{3in}l}")
	} else {
		fmt.Println("\\begin{table}")
		fmt.Println("\\begin{tabular}{llp{3in}l}")
	}
	fmt.Println("{\\bf GitHub ID} & {\\bf Commit ID} & {\\bf Comment} & {\\bf GitHub push time} \\\\")
	fmt.Println("\\hline")
	if longtable {
		fmt.Println("\\endhead")
	}
	for _, ev := range report.Events {
		date := ev.CreatedAt.Local().Format("2006-01-02 15:04:05")
		for _, c := range ev.Commits {
			fmt.Printf("%s & {\\tt %s} & %s & {\\tt %s} \\\\\n",
				texEscape(ev.Actor), shortSHA(c.SHA), texEscape(firstLine(c.Message)), date)
		}
	}
	fmt.Println("\\hline")
	if longtable {
		fmt.Printf("\\caption{Events for %s \\label{%s}}\n", texEscape(repo), label)
		fmt.Println("\\end{longtable}")
	} else {
		fmt.Println("\\end{tabular}")
		fmt.Printf("\\caption{Events for %s \\label{%s}}\n", texEscape(repo), label)
		fmt.Println("\\end{table}")
	}
	if tiny {
		fmt.Println("}")
	}
}

// shortSHA abbreviates a commit hash the way GitHub shows them on the web.
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// texReplacer escapes the LaTeX special characters in commit messages.
var texReplacer = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"&", "\\&",
	"%", "\\%",
	"$", "\\$",
	"#", "\\#",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\^{}",
	"<", "\\textless{}",
	">", "\\textgreater{}",
)

func texEscape(s string) string {
	return texReplacer.Replace(s)
}

func init() {
	rootCmd.AddCommand(eventTimesCmd)
	eventTimesCmd.Flags().Bool("latex", false, "Emit a LaTeX table")
	eventTimesCmd.Flags().Bool("longtable", false, "Use the LaTeX longtable package (implies --latex)")
	eventTimesCmd.Flags().Bool("tiny", false, "Wrap the LaTeX table in footnotesize")
}
