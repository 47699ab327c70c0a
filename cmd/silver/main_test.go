package main

import (
	"fmt"
	"testing"

	csvparser "bronze/internal/parser/csv"
	"bronze/internal/shard"
)

func strp(s string) *string { return &s }

/*
writeShards persists n single-text-column rows under dir with the given
rollover threshold, via the same writer the bronze binary uses.
*/
func writeShards(t *testing.T, dir string, n int, rowsPerShard int64) {
	t.Helper()
	w, err := shard.NewWriter(dir, rowsPerShard)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	b := csvparser.NewBatch([]string{"plain_text", "id"})
	for i := 0; i < n; i++ {
		b.Append([]*string{
			strp(fmt.Sprintf("opinion number %d", i)),
			strp(fmt.Sprint(i)),
		})
	}
	if err := w.Write(b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoadBronzePreservesShardOrder(t *testing.T) {
	dir := t.TempDir()
	writeShards(t, dir, 10, 3) // part-00000 .. part-00003

	rows, files, err := loadBronze(dir)
	if err != nil {
		t.Fatalf("loadBronze: %v", err)
	}
	if files != 4 {
		t.Fatalf("files = %d, want 4", files)
	}
	if len(rows) != 10 {
		t.Fatalf("rows = %d, want 10", len(rows))
	}
	for i, r := range rows {
		if r.ID == nil || *r.ID != fmt.Sprint(i) {
			t.Fatalf("row %d id = %v, order broken", i, r.ID)
		}
	}
}

func TestLoadBronzeEmptyDir(t *testing.T) {
	if _, _, err := loadBronze(t.TempDir()); err == nil {
		t.Fatal("want error for directory without parquet files")
	}
}

func TestSampleRowsDeterministic(t *testing.T) {
	rows := make([]shard.Row, 100)
	for i := range rows {
		id := fmt.Sprint(i)
		rows[i].ID = &id
	}

	a := sampleRows(rows, 10)
	b := sampleRows(rows, 10)
	if len(a) != 10 || len(b) != 10 {
		t.Fatalf("sample sizes = %d, %d", len(a), len(b))
	}
	for i := range a {
		if *a[i].ID != *b[i].ID {
			t.Fatal("sampling is not deterministic")
		}
	}

	// Sampled rows keep their original relative order.
	prev := -1
	for _, r := range a {
		var n int
		fmt.Sscan(*r.ID, &n)
		if n <= prev {
			t.Fatalf("sample out of order at id %d", n)
		}
		prev = n
	}
}

func TestTextLengthStats(t *testing.T) {
	rows := []shard.Row{
		{PlainText: strp("ab")},         // 2 runes
		{PlainText: strp("abcd")},       // 4
		{PlainText: nil},                // ignored
		{PlainText: strp("abcdefgh")},   // 8
	}
	st := textLengthStats(rows)

	if st.n != 3 {
		t.Fatalf("n = %d, want 3", st.n)
	}
	if st.min != 2 || st.max != 8 {
		t.Errorf("min/max = %d/%d, want 2/8", st.min, st.max)
	}
	if st.median != 4 {
		t.Errorf("median = %d, want 4", st.median)
	}
	if want := (2 + 4 + 8) / 3.0; st.mean != want {
		t.Errorf("mean = %f, want %f", st.mean, want)
	}
	if st.totalBytes != 14 {
		t.Errorf("totalBytes = %d, want 14", st.totalBytes)
	}
}

func TestTextLengthStatsCountsRunesNotBytes(t *testing.T) {
	rows := []shard.Row{{PlainText: strp("héllo")}} // 5 runes, 6 bytes
	st := textLengthStats(rows)
	if st.min != 5 || st.max != 5 {
		t.Fatalf("rune length = %d/%d, want 5/5", st.min, st.max)
	}
	if st.totalBytes != 6 {
		t.Fatalf("totalBytes = %d, want 6", st.totalBytes)
	}
}

func TestTextLengthStatsAllNull(t *testing.T) {
	st := textLengthStats([]shard.Row{{PlainText: nil}, {PlainText: nil}})
	if st.n != 0 || st.totalBytes != 0 {
		t.Fatalf("stats over null rows = %+v", st)
	}
}
