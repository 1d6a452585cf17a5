// Package roster maps GitHub IDs to student identities using the class CSV.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Student is one roster row. Fields beyond GitHubID are free-form and may
// be empty depending on what the CSV provides.
type Student struct {
	GitHubID string
	Name     string
	Email    string
	NetID    string
}

// Roster indexes students by lowercase GitHub ID.
type Roster struct {
	byID map[string]Student
}

// Load reads a CSV roster with a header row. The header must include a
// GitHubID column; Name, Email, and NetID columns are picked up when
// present. GitHub IDs are lowercased since logins are case-insensitive.
func Load(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads roster rows from r.
func Parse(r io.Reader) (*Roster, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := col["githubid"]
	if !ok {
		return nil, fmt.Errorf("roster is missing a GitHubID column (got %v)", header)
	}

	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	roster := &Roster{byID: make(map[string]Student)}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row: %w", err)
		}
		id := strings.ToLower(strings.TrimSpace(row[idCol]))
		if id == "" {
			continue
		}
		roster.byID[id] = Student{
			GitHubID: id,
			Name:     field(row, "name"),
			Email:    field(row, "email"),
			NetID:    field(row, "netid"),
		}
	}
	return roster, nil
}

// Len returns the number of roster entries.
func (r *Roster) Len() int { return len(r.byID) }

// Lookup returns the student for a GitHub ID, if known.
func (r *Roster) Lookup(githubID string) (Student, bool) {
	s, ok := r.byID[strings.ToLower(githubID)]
	return s, ok
}

// Describe renders a human-readable identity for a GitHub ID: the roster
// name and email when known, otherwise just the ID.
func (r *Roster) Describe(githubID string) string {
	s, ok := r.Lookup(githubID)
	if !ok || s.Name == "" {
		return githubID
	}
	if s.NetID != "" && !strings.HasPrefix(s.Email, s.NetID) {
		return fmt.Sprintf("%s <%s> (%s)", s.Name, s.Email, s.NetID)
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}
