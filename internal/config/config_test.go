package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	c := Default()
	c.URL = "https://example.com/opinions.csv.bz2"
	c.OutDir = "data/bronze/opinions/2025-09-04"
	return c
}

func TestDefaultValues(t *testing.T) {
	c := Default()
	if c.RowsPerShard != DefaultRowsPerShard {
		t.Errorf("RowsPerShard = %d", c.RowsPerShard)
	}
	if c.BlockMB != DefaultBlockMB {
		t.Errorf("BlockMB = %d", c.BlockMB)
	}
	if c.SummaryEvery != DefaultSummaryEvery {
		t.Errorf("SummaryEvery = %d", c.SummaryEvery)
	}
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s", c.Timeout)
	}
	if c.Job != "bronze" {
		t.Errorf("Job = %q", c.Job)
	}
}

func TestDefaultEnvOverrides(t *testing.T) {
	t.Setenv("BRONZE_ROWS_PER_SHARD", "500000")
	t.Setenv("BRONZE_BLOCK_MB", "64")
	t.Setenv("BRONZE_SUMMARY_EVERY", "not-a-number")

	c := Default()
	if c.RowsPerShard != 500000 {
		t.Errorf("RowsPerShard = %d, want 500000", c.RowsPerShard)
	}
	if c.BlockMB != 64 {
		t.Errorf("BlockMB = %d, want 64", c.BlockMB)
	}
	if c.SummaryEvery != DefaultSummaryEvery {
		t.Errorf("invalid env should fall back to default, got %d", c.SummaryEvery)
	}
}

func TestBlockSize(t *testing.T) {
	c := Config{BlockMB: 128}
	if got := c.BlockSize(); got != 128<<20 {
		t.Fatalf("BlockSize = %d, want %d", got, 128<<20)
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	issues := Validate(validConfig())
	if len(issues) != 0 {
		t.Fatalf("issues = %v, want none", issues)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"missing url", func(c *Config) { c.URL = "" }, "url"},
		{"ftp url", func(c *Config) { c.URL = "ftp://example.com/x.csv" }, "url"},
		{"missing out dir", func(c *Config) { c.OutDir = "  " }, "out-dir"},
		{"zero rows per shard", func(c *Config) { c.RowsPerShard = 0 }, "rows-per-shard"},
		{"zero block", func(c *Config) { c.BlockMB = 0 }, "block-mb"},
		{"bad verbosity", func(c *Config) { c.Verbosity = 3 }, "v"},
		{"zero summary cadence", func(c *Config) { c.SummaryEvery = 0 }, "summary-every"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			issues := Validate(c)
			if !HasError(issues) {
				t.Fatalf("want an error issue, got %v", issues)
			}
			found := false
			for _, iss := range issues {
				if iss.Path == tc.path && iss.Severity == SeverityError {
					found = true
				}
			}
			if !found {
				t.Fatalf("no error at path %q in %v", tc.path, issues)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	c := validConfig()
	c.RowsPerShard = 100
	c.BlockMB = 4096

	issues := Validate(c)
	if HasError(issues) {
		t.Fatalf("warnings escalated to errors: %v", issues)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %v, want 2 warnings", issues)
	}
	for _, iss := range issues {
		if iss.Severity != SeverityWarning {
			t.Errorf("severity = %s, want warning", iss.Severity)
		}
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{SeverityError, "url", "source URL is required"}
	want := "error at url: source URL is required"
	if iss.Error() != want {
		t.Fatalf("Error() = %q, want %q", iss.Error(), want)
	}
}

func TestValidateTimeoutWarningFree(t *testing.T) {
	c := validConfig()
	c.Timeout = 5 * time.Minute
	if issues := Validate(c); len(issues) != 0 {
		t.Fatalf("issues = %v", issues)
	}
}
