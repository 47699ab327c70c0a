package probe

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bronze/internal/datasource/httpds"
)

var neededCols = []string{"plain_text", "id", "author_id"}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func serve(t *testing.T, path string, blob []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(blob)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteGzipSample(t *testing.T) {
	csvData := "Plain_Text,ID,Author ID,download_url\n" +
		"hello,1,7,http://x\n" +
		",2,,http://y\n" +
		"world,3,9,http://z\n"
	srv := serve(t, "/dump.csv.gz", gzipBytes(t, []byte(csvData)))

	c := httpds.NewClient(httpds.Config{})
	rep, err := Remote(context.Background(), c, srv.URL+"/dump.csv.gz", 1<<20, neededCols, ',')
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}

	if rep.Format != httpds.FormatGzip {
		t.Fatalf("Format = %s", rep.Format)
	}
	if rep.SampleBytes == 0 || rep.Fingerprint == 0 {
		t.Fatalf("sample not captured: bytes=%d fp=%d", rep.SampleBytes, rep.Fingerprint)
	}
	if rep.SampleRows != 3 {
		t.Fatalf("SampleRows = %d, want 3", rep.SampleRows)
	}
	if len(rep.MissingNeeded) != 0 {
		t.Fatalf("MissingNeeded = %v", rep.MissingNeeded)
	}

	byName := map[string]Column{}
	for _, col := range rep.Columns {
		byName[col.Canonical] = col
	}
	if !byName["plain_text"].Needed || !byName["author_id"].Needed {
		t.Fatal("needed columns not flagged")
	}
	if byName["download_url"].Needed {
		t.Fatal("extra column flagged as needed")
	}
	if byName["plain_text"].Nulls != 1 || byName["author_id"].Nulls != 1 {
		t.Fatalf("null counts wrong: %+v", rep.Columns)
	}
	if byName["author_id"].Name != "Author ID" {
		t.Fatalf("raw name = %q", byName["author_id"].Name)
	}
}

func TestRemoteReportsMissingNeeded(t *testing.T) {
	csvData := "id,download_url\n1,http://x\n"
	srv := serve(t, "/dump.csv", []byte(csvData))

	c := httpds.NewClient(httpds.Config{})
	rep, err := Remote(context.Background(), c, srv.URL+"/dump.csv", 1<<20, neededCols, ',')
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	want := []string{"plain_text", "author_id"}
	if len(rep.MissingNeeded) != len(want) {
		t.Fatalf("MissingNeeded = %v, want %v", rep.MissingNeeded, want)
	}
	for i := range want {
		if rep.MissingNeeded[i] != want[i] {
			t.Fatalf("MissingNeeded = %v, want %v", rep.MissingNeeded, want)
		}
	}
}

func TestRemoteTruncatedSample(t *testing.T) {
	// Plain CSV cut mid-row: the probe reports rows that decoded cleanly and
	// ignores the damaged tail.
	var sb strings.Builder
	sb.WriteString("plain_text,id,author_id\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("some opinion text,1,2\n")
	}
	full := sb.String()
	srv := serve(t, "/dump.csv", []byte(full[:len(full)-10]))

	c := httpds.NewClient(httpds.Config{})
	rep, err := Remote(context.Background(), c, srv.URL+"/dump.csv", 1<<20, neededCols, ',')
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if rep.SampleRows < 40 {
		t.Fatalf("SampleRows = %d, expected most rows to decode", rep.SampleRows)
	}
	if len(rep.MissingNeeded) != 0 {
		t.Fatalf("MissingNeeded = %v", rep.MissingNeeded)
	}
}

func TestRemoteEmptySample(t *testing.T) {
	srv := serve(t, "/empty.csv", nil)
	c := httpds.NewClient(httpds.Config{})
	if _, err := Remote(context.Background(), c, srv.URL+"/empty.csv", 1<<20, neededCols, ','); err == nil {
		t.Fatal("want error for empty sample")
	}
}

func TestRemoteStableFingerprint(t *testing.T) {
	blob := gzipBytes(t, []byte("plain_text,id,author_id\nx,1,2\n"))
	srv := serve(t, "/dump.csv.gz", blob)

	c := httpds.NewClient(httpds.Config{})
	a, err := Remote(context.Background(), c, srv.URL+"/dump.csv.gz", 1<<20, neededCols, ',')
	if err != nil {
		t.Fatal(err)
	}
	b, err := Remote(context.Background(), c, srv.URL+"/dump.csv.gz", 1<<20, neededCols, ',')
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints differ: %x vs %x", a.Fingerprint, b.Fingerprint)
	}
}
