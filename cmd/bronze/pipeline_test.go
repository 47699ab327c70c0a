package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"bronze/internal/config"
	"bronze/internal/datasource/httpds"
	csvparser "bronze/internal/parser/csv"
	"bronze/internal/shard"
	"bronze/internal/stats"
)

const testDump = "plain_text,id,author_id,author_str,type,date_created,per_curiam\n" +
	"First   opinion\ttext,1,10,Smith,opinion,2020-01-01,f\n" +
	",2,11,Jones,opinion,2020-01-02,f\n" + // null text, filtered
	"Second opinion,3,12,Lee,dissent,2020-01-03,t\n" +
	"\"Third\n\nopinion\",4,,,,2020-01-04,\n" +
	"  Fourth opinion  ,5,14,Kim,opinion,2020-01-05,f\n"

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

func serveDump(t *testing.T, path string, blob []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(blob)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url, outDir string) config.Config {
	cfg := config.Default()
	cfg.URL = url
	cfg.OutDir = outDir
	cfg.RowsPerShard = 2
	cfg.BlockMB = 1
	cfg.Timeout = 10 * time.Second
	cfg.Job = "test"
	return cfg
}

func loadAllShards(t *testing.T, dir string) []shard.Row {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(paths)
	var rows []shard.Row
	for _, p := range paths {
		part, err := parquet.ReadFile[shard.Row](p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		rows = append(rows, part...)
	}
	return rows
}

func TestRunBronzeEndToEnd(t *testing.T) {
	srv := serveDump(t, "/opinions.csv.gz", gzipBytes(t, []byte(testDump)))
	outDir := t.TempDir()
	cfg := testConfig(srv.URL+"/opinions.csv.gz", outDir)

	run := stats.NewRun()
	if err := runBronze(context.Background(), cfg, run); err != nil {
		t.Fatalf("runBronze: %v", err)
	}

	if run.RowsSeen != 5 {
		t.Errorf("RowsSeen = %d, want 5", run.RowsSeen)
	}
	if run.RowsKept != 4 {
		t.Errorf("RowsKept = %d, want 4", run.RowsKept)
	}
	if run.ShardsClosed != 2 {
		t.Errorf("ShardsClosed = %d, want 2", run.ShardsClosed)
	}
	if run.BytesStreamed != int64(len(testDump)) {
		t.Errorf("BytesStreamed = %d, want %d", run.BytesStreamed, len(testDump))
	}
	if run.BytesSaved <= 0 {
		t.Errorf("BytesSaved = %d, want > 0", run.BytesSaved)
	}

	rows := loadAllShards(t, outDir)
	if len(rows) != 4 {
		t.Fatalf("persisted rows = %d, want 4", len(rows))
	}

	// Order survives filtering and sharding; text is whitespace-normalized.
	wantIDs := []string{"1", "3", "4", "5"}
	wantText := []string{"First opinion text", "Second opinion", "Third opinion", "Fourth opinion"}
	for i, r := range rows {
		if r.ID == nil || *r.ID != wantIDs[i] {
			t.Errorf("row %d id = %v, want %s", i, r.ID, wantIDs[i])
		}
		if r.PlainText == nil || *r.PlainText != wantText[i] {
			t.Errorf("row %d text = %v, want %q", i, r.PlainText, wantText[i])
		}
	}

	// Empty source fields round-trip as nulls.
	if rows[2].AuthorID != nil || rows[2].AuthorStr != nil {
		t.Error("empty author fields should persist as null")
	}
}

func TestRunBronzeOverlapped(t *testing.T) {
	srv := serveDump(t, "/opinions.csv.gz", gzipBytes(t, []byte(testDump)))
	outDir := t.TempDir()
	cfg := testConfig(srv.URL+"/opinions.csv.gz", outDir)
	cfg.Overlap = true

	run := stats.NewRun()
	if err := runBronze(context.Background(), cfg, run); err != nil {
		t.Fatalf("runBronze: %v", err)
	}

	rows := loadAllShards(t, outDir)
	if len(rows) != 4 {
		t.Fatalf("persisted rows = %d, want 4", len(rows))
	}
	for i, want := range []string{"1", "3", "4", "5"} {
		if rows[i].ID == nil || *rows[i].ID != want {
			t.Fatalf("row %d id = %v, want %s (order broken)", i, rows[i].ID, want)
		}
	}
	if run.RowsKept != 4 {
		t.Errorf("RowsKept = %d, want 4", run.RowsKept)
	}
}

func TestRunBronzeSchemaFailureProducesNoShards(t *testing.T) {
	dump := "id,download_url\n1,http://x\n"
	srv := serveDump(t, "/opinions.csv.gz", gzipBytes(t, []byte(dump)))
	outDir := t.TempDir()
	cfg := testConfig(srv.URL+"/opinions.csv.gz", outDir)

	err := runBronze(context.Background(), cfg, stats.NewRun())
	var se *csvparser.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v (%T), want *csv.SchemaError", err, err)
	}

	paths, _ := filepath.Glob(filepath.Join(outDir, "*.parquet"))
	if len(paths) != 0 {
		t.Fatalf("shard files = %v, want none after schema failure", paths)
	}
}

func TestRunBronzeSoftDropsMalformedRows(t *testing.T) {
	dump := "plain_text,id,author_id,author_str,type,date_created,per_curiam\n" +
		"good,1,2,3,4,5,6\n" +
		"short,row\n" +
		"also good,7,8,9,10,11,12\n"
	srv := serveDump(t, "/opinions.csv.gz", gzipBytes(t, []byte(dump)))
	outDir := t.TempDir()
	cfg := testConfig(srv.URL+"/opinions.csv.gz", outDir)

	run := stats.NewRun()
	if err := runBronze(context.Background(), cfg, run); err != nil {
		t.Fatalf("runBronze: %v", err)
	}
	if run.RowErrors != 1 {
		t.Errorf("RowErrors = %d, want 1", run.RowErrors)
	}
	if run.RowsKept != 2 {
		t.Errorf("RowsKept = %d, want 2", run.RowsKept)
	}
}

func TestRunBronzeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL+"/missing.csv.gz", t.TempDir())

	err := runBronze(context.Background(), cfg, stats.NewRun())
	var te *httpds.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v (%T), want *TransportError", err, err)
	}
}

func TestRunBronzeMislabeledPayload(t *testing.T) {
	srv := serveDump(t, "/opinions.csv.bz2", []byte("<html>oops</html>"))
	cfg := testConfig(srv.URL+"/opinions.csv.bz2", t.TempDir())

	err := runBronze(context.Background(), cfg, stats.NewRun())
	var de *httpds.DecompressionError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v (%T), want *DecompressionError", err, err)
	}
}

func TestRunBronzeCanceledContext(t *testing.T) {
	srv := serveDump(t, "/opinions.csv.gz", gzipBytes(t, []byte(testDump)))
	cfg := testConfig(srv.URL+"/opinions.csv.gz", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runBronze(ctx, cfg, stats.NewRun()); err == nil {
		t.Fatal("want error for canceled context")
	}
}
