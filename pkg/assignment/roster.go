package assignment

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"onramp/pkg/core"
)

// RosterEntry is one member of a project roster.
type RosterEntry struct {
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
	Status string `yaml:"status"`
}

// Active reports whether the member currently counts for authorization.
func (e RosterEntry) Active() bool {
	return strings.EqualFold(strings.TrimSpace(e.Status), "active")
}

// RosterChecker authorizes employees against static per-project rosters.
type RosterChecker struct {
	rosters map[string][]RosterEntry
}

// NewRosterChecker creates a checker over the given rosters, keyed by
// project id.
func NewRosterChecker(rosters map[string][]RosterEntry) *RosterChecker {
	if rosters == nil {
		rosters = make(map[string][]RosterEntry)
	}
	return &RosterChecker{rosters: rosters}
}

// CheckAssignment returns the employee's verdict for the project.
// Email matching is case-insensitive.
func (c *RosterChecker) CheckAssignment(_ context.Context, employeeID, projectID string) (core.Verdict, error) {
	email := strings.ToLower(strings.TrimSpace(employeeID))
	for _, entry := range c.rosters[projectID] {
		if strings.ToLower(entry.Email) == email && entry.Active() {
			return core.Verdict{Authorized: true, Role: entry.Role}, nil
		}
	}
	return core.Verdict{Authorized: false}, nil
}

type rosterFile struct {
	Rosters map[string][]RosterEntry `yaml:"rosters"`
}

// LoadRosters parses project rosters from a YAML file.
func LoadRosters(path string) (map[string][]RosterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRosters(data)
}

// ParseRosters parses project rosters from YAML bytes.
func ParseRosters(data []byte) (map[string][]RosterEntry, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rosters: %w", err)
	}
	for projectID, entries := range file.Rosters {
		for i, entry := range entries {
			if strings.TrimSpace(entry.Email) == "" {
				return nil, fmt.Errorf("roster %q entry %d missing email", projectID, i)
			}
		}
	}
	if file.Rosters == nil {
		file.Rosters = make(map[string][]RosterEntry)
	}
	return file.Rosters, nil
}
