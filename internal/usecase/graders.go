package usecase

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	"github.com/classtools/classroom-sync/internal/domain"
)

// ErrNoGraders means the grader list is empty so the work cannot be divided.
var ErrNoGraders = errors.New("grader list is empty, cannot assign grading")

// GraderReport is the outcome of dividing student submissions among graders.
type GraderReport struct {
	Prefix string
	// Submissions maps a student's GitHub ID to their matching
	// repositories. More than one repository per student is unexpected
	// but does happen.
	Submissions map[string][]domain.RepositorySnapshot
	// Assignments maps each grader to their students, sorted.
	Assignments map[string][]string
	// Warnings reports duplicate submissions and similar oddities.
	Warnings []string
}

// StudentID extracts the student's GitHub ID from a repository name given
// the assignment prefix: "week06-alice" with prefix "week06" yields "alice".
// IDs compare lowercase since GitHub logins are case-insensitive.
func StudentID(prefix, repoName string) string {
	id := strings.TrimPrefix(repoName, prefix)
	id = strings.TrimLeft(id, "-_")
	return strings.ToLower(id)
}

// AssignmentSeed derives a deterministic shuffle seed from the repository
// listing, so rerunning the assignment over an unchanged class yields the
// same division of work.
func AssignmentSeed(snaps []domain.RepositorySnapshot) int64 {
	h := fnv.New64a()
	for _, s := range snaps {
		h.Write([]byte(s.Name))
		h.Write([]byte{0})
		h.Write([]byte(s.HeadSHA))
		h.Write([]byte{0})
	}
	return int64(h.Sum64())
}

// AssignGraders randomly divides the students behind the given repository
// snapshots among the graders. Graders and anyone on the ignore list are
// excluded from being graded. Both the student order and the grader order
// are shuffled from seed, so the unlucky grader with the extra student
// changes week to week.
func AssignGraders(snaps []domain.RepositorySnapshot, prefix string, graders, ignore []string, seed int64) (*GraderReport, error) {
	if len(graders) == 0 {
		return nil, ErrNoGraders
	}

	excluded := make(map[string]bool, len(graders)+len(ignore))
	for _, g := range graders {
		excluded[strings.ToLower(g)] = true
	}
	for _, id := range ignore {
		excluded[strings.ToLower(id)] = true
	}

	report := &GraderReport{
		Prefix:      prefix,
		Submissions: make(map[string][]domain.RepositorySnapshot),
		Assignments: make(map[string][]string),
	}

	for _, snap := range snaps {
		id := StudentID(prefix, snap.Name)
		if id == "" || excluded[id] {
			continue
		}
		if prior, ok := report.Submissions[id]; ok {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("student %s has multiple repos: %s and %s", id, prior[0].Name, snap.Name))
		}
		report.Submissions[id] = append(report.Submissions[id], snap)
	}

	students := make([]string, 0, len(report.Submissions))
	for id := range report.Submissions {
		students = append(students, id)
	}
	sort.Strings(students)

	shuffledGraders := append([]string(nil), graders...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(students), func(i, j int) { students[i], students[j] = students[j], students[i] })
	rng.Shuffle(len(shuffledGraders), func(i, j int) {
		shuffledGraders[i], shuffledGraders[j] = shuffledGraders[j], shuffledGraders[i]
	})

	for i, student := range students {
		grader := shuffledGraders[i%len(shuffledGraders)]
		report.Assignments[grader] = append(report.Assignments[grader], student)
	}
	for _, students := range report.Assignments {
		sort.Strings(students)
	}
	return report, nil
}
