// Command csvprobe samples the first N bytes of a remote compressed CSV dump
// and prints the header with needed-column coverage and per-column null ratios.
// It is the cheap sanity check to run before launching a multi-hour bronze
// conversion.
//
// Example:
//
//	csvprobe -url="https://example.com/opinions.csv.bz2" -bytes=262144
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bronze/internal/datasource/httpds"
	"bronze/internal/probe"
	"bronze/internal/shard"
)

func main() {
	var (
		url     string
		nBytes  int
		delim   string
		needed  string
		timeout time.Duration
	)

	flag.StringVar(&url, "url", "", "URL of the compressed CSV resource (required)")
	flag.IntVar(&nBytes, "bytes", 256<<10, "sample size in bytes")
	flag.StringVar(&delim, "delimiter", ",", "field delimiter")
	flag.StringVar(&needed, "needed", strings.Join(shard.NeededCols, ","),
		"comma-separated needed column set to check for")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	flag.Parse()

	if url == "" {
		fmt.Fprintln(os.Stderr, "csvprobe: -url is required")
		os.Exit(2)
	}

	var comma rune = ','
	if delim != "" {
		comma = []rune(delim)[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := httpds.NewClient(httpds.Config{Timeout: timeout})
	rep, err := probe.Remote(ctx, client, url, nBytes, splitNeeded(needed), comma)
	if err != nil {
		log.Fatalf("csvprobe: %v", err)
	}

	fmt.Printf("url:         %s\n", rep.URL)
	fmt.Printf("format:      %s\n", rep.Format)
	fmt.Printf("sample:      %d bytes, fingerprint=%016x\n", rep.SampleBytes, rep.Fingerprint)
	fmt.Printf("sample rows: %d\n", rep.SampleRows)
	fmt.Printf("columns:\n")
	for _, c := range rep.Columns {
		marker := " "
		if c.Needed {
			marker = "*"
		}
		nulls := ""
		if rep.SampleRows > 0 {
			nulls = fmt.Sprintf("  nulls=%d/%d", c.Nulls, rep.SampleRows)
		}
		fmt.Printf("  %s %-24s (raw %q)%s\n", marker, c.Canonical, c.Name, nulls)
	}
	if len(rep.MissingNeeded) > 0 {
		fmt.Printf("MISSING needed columns: %s\n", strings.Join(rep.MissingNeeded, ", "))
		os.Exit(1)
	}
	fmt.Println("all needed columns present")
}

func splitNeeded(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
