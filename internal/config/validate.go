// This file adds a lightweight linter/validator for Config values. It performs
// static checks over a populated Config and returns a list of issues (errors
// and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Config.
//
// Path is the flag-style name of the offending field (e.g. "url",
// "rows-per-shard"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static validation of a Config.
//
// It does not mutate the config. Callers may decide whether to treat warnings
// as fatal or not.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.URL) == "" {
		issues = append(issues, Issue{SeverityError, "url", "source URL is required"})
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, Issue{SeverityError, "url", "source URL must be http(s)"})
	}

	if strings.TrimSpace(c.OutDir) == "" {
		issues = append(issues, Issue{SeverityError, "out-dir", "output directory is required"})
	}

	if c.RowsPerShard <= 0 {
		issues = append(issues, Issue{SeverityError, "rows-per-shard", "must be > 0"})
	} else if c.RowsPerShard < 10_000 {
		issues = append(issues, Issue{SeverityWarning, "rows-per-shard",
			"very small shards produce many files; intended for tests only"})
	}

	if c.BlockMB <= 0 {
		issues = append(issues, Issue{SeverityError, "block-mb", "must be > 0"})
	} else if c.BlockMB > 1024 {
		issues = append(issues, Issue{SeverityWarning, "block-mb",
			"blocks above 1 GiB hold that much decoded data in memory per batch"})
	}

	if c.Verbosity < 0 || c.Verbosity > 2 {
		issues = append(issues, Issue{SeverityError, "v", "verbosity must be 0, 1, or 2"})
	}

	if c.SummaryEvery <= 0 {
		issues = append(issues, Issue{SeverityError, "summary-every", "must be > 0"})
	}

	if c.Timeout <= 0 {
		issues = append(issues, Issue{SeverityError, "timeout", "must be > 0"})
	}

	return issues
}

// HasError reports whether any issue in the list is severity error.
func HasError(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
