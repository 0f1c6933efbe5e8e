package doctor

import (
	"fmt"
	"os/exec"
	"sort"

	"tailnym/internal/model"
	"tailnym/internal/sshclient"
	"tailnym/internal/store"
	"tailnym/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes local diagnostics for tailnym operations.
func Run() (Report, error) {
	var issues []Issue

	if err := sshclient.EnsureSSHBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenSSH client and ensure `ssh` is on PATH",
		})
	}

	if _, err := exec.LookPath("tailscale"); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "tailscale-binary",
			Target:         "PATH",
			Message:        "tailscale binary not found in PATH",
			Recommendation: "install tailscale, or use `refresh --file` with a saved status snapshot",
		})
	}

	if s, err := store.Open(); err == nil {
		table, loadErr := s.Load()
		if loadErr != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "table-unreadable",
				Target:         s.Path(),
				Message:        loadErr.Error(),
				Recommendation: "fix or remove the pseudonym table file",
			})
		} else {
			issues = append(issues, duplicateTargetIssues(table)...)
			issues = append(issues, portIssues(table)...)
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		return issues[i].Target < issues[j].Target
	})
	return Report{Issues: issues}, nil
}

func duplicateTargetIssues(table model.Table) []Issue {
	seen := map[string][]string{}
	for name, e := range table {
		key := fmt.Sprintf("%s:%d", e.IP, e.Port)
		seen[key] = append(seen[key], name)
	}
	var issues []Issue
	for target, names := range seen {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "duplicate-target",
			Target:         target,
			Message:        fmt.Sprintf("target is mapped by %d pseudonyms", len(names)),
			Recommendation: "remove stale pseudonyms pointing at the same host",
		})
	}
	return issues
}

func portIssues(table model.Table) []Issue {
	var issues []Issue
	for name, e := range table {
		if err := util.ValidatePort(e.Port); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "invalid-port",
				Target:         name,
				Message:        err.Error(),
				Recommendation: "re-add the pseudonym with a valid port",
			})
		}
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
