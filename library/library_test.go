package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"osusim/dotosu"
)

func chart(title, artist, version string) string {
	return strings.Join([]string{
		"osu file format v14",
		"[General]",
		"AudioFilename: audio.mp3",
		"[Metadata]",
		"Title:" + title,
		"Artist:" + artist,
		"Creator:mapper",
		"Version:" + version,
		"Tags:test_tag",
		"[Difficulty]",
		"CircleSize:4",
		"OverallDifficulty:8",
		"ApproachRate:9",
		"[HitObjects]",
		"100,100,1000,1,0",
		"200,100,1500,2,0,L|300:100,1,100",
		"256,192,3000,12,0,4000",
		"",
	}, "\n")
}

func openTest(t *testing.T) *Library {
	t.Helper()
	l, _ := test.NewNullLogger()
	lib, err := Open(filepath.Join(t.TempDir(), "db", "library.db"), WithLogger(l))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func writeChart(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexAndGet(t *testing.T) {
	lib := openTest(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.osu")
	body := chart("Song", "Band", "Hard")
	writeChart(t, path, body)

	e, err := lib.Index(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if e.Checksum != Checksum([]byte(body)) || len(e.Checksum) != 32 {
		t.Errorf("Unexpected checksum %q", e.Checksum)
	}

	got, err := lib.Get(ctx, e.Checksum)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "Band - Song [Hard]" {
		t.Errorf("Unexpected name %q", got.Name())
	}
	if got.Counts != (dotosu.Counts{Circles: 1, Sliders: 1, Spinners: 1}) || got.LengthMs != 4000 {
		t.Errorf("Unexpected counts %+v length %v", got.Counts, got.LengthMs)
	}
	if got.Preempt != 600 || got.Windows.Great != 32 || got.Difficulty.ApproachRate != 9 {
		t.Errorf("Unexpected derived values %+v", got)
	}
	if !got.IndexedAt.Equal(e.IndexedAt) || got.Size != int64(len(body)) {
		t.Errorf("Unexpected bookkeeping %v %v", got.IndexedAt, got.Size)
	}

	if _, err := lib.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReindexReplacesPath(t *testing.T) {
	lib := openTest(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.osu")

	writeChart(t, path, chart("Old", "Band", "Hard"))
	first, err := lib.Index(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	writeChart(t, path, chart("New", "Band", "Hard"))
	if _, err := lib.Index(ctx, path); err != nil {
		t.Fatal(err)
	}

	if n, _ := lib.Count(ctx); n != 1 {
		t.Errorf("Expected one entry after reindex, got %d", n)
	}
	if _, err := lib.Get(ctx, first.Checksum); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old checksum gone, got %v", err)
	}
}

func TestScanAndSearch(t *testing.T) {
	lib := openTest(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeChart(t, filepath.Join(dir, "set1", "easy.osu"), chart("Alpha", "Band", "Easy"))
	writeChart(t, filepath.Join(dir, "set1", "hard.OSU"), chart("Alpha", "Band", "Hard"))
	writeChart(t, filepath.Join(dir, "set2", "x.osu"), chart("Beta", "Other", "Insane"))
	writeChart(t, filepath.Join(dir, "set2", "notes.txt"), "ignored")
	if err := os.Mkdir(filepath.Join(dir, "set2", "broken.osu"), 0o755); err != nil {
		t.Fatal(err)
	}

	report, err := lib.Scan(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if report.Files != 3 || report.Indexed != 3 || len(report.Failures) != 0 {
		t.Errorf("Unexpected report %+v", report)
	}

	res, err := lib.Search(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].Version != "Easy" || res[1].Version != "Hard" {
		t.Errorf("Unexpected search result %+v", res)
	}
	if res, _ := lib.Search(ctx, "insane"); len(res) != 1 || res[0].Title != "Beta" {
		t.Errorf("Expected version match, got %+v", res)
	}
	if res, _ := lib.Search(ctx, ""); len(res) != 3 {
		t.Errorf("Expected everything for empty search, got %d", len(res))
	}
	// Underscore is literal, not a wildcard.
	if res, _ := lib.Search(ctx, "test_tag"); len(res) != 3 {
		t.Errorf("Expected tag match, got %d", len(res))
	}
	if res, _ := lib.Search(ctx, "testxtag"); len(res) != 0 {
		t.Errorf("Expected no wildcard match, got %d", len(res))
	}
}

func TestScanReportsFailures(t *testing.T) {
	lib := openTest(t)
	dir := t.TempDir()
	bad := filepath.Join(dir, "locked.osu")
	writeChart(t, bad, chart("A", "B", "C"))
	if err := os.Chmod(bad, 0); err != nil {
		t.Fatal(err)
	}
	if f, err := os.Open(bad); err == nil {
		f.Close()
		t.Skip("file permissions are not enforced for this user")
	}

	report, err := lib.Scan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 0 || len(report.Failures) != 1 || !errors.Is(report.Failures[0].Err, dotosu.ErrIOFailure) {
		t.Errorf("Unexpected report %+v", report)
	}
}

func TestScanRejectsFile(t *testing.T) {
	lib := openTest(t)
	path := filepath.Join(t.TempDir(), "a.osu")
	writeChart(t, path, chart("A", "B", "C"))
	if _, err := lib.Scan(context.Background(), path); err == nil {
		t.Error("Expected error scanning a file")
	}
}

func TestRemove(t *testing.T) {
	lib := openTest(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.osu")
	writeChart(t, path, chart("A", "B", "C"))
	if _, err := lib.Index(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := lib.Remove(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := lib.Remove(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second remove, got %v", err)
	}
}

func TestWatch(t *testing.T) {
	lib := openTest(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- lib.Watch(ctx, dir, func(ev Event) { events <- ev })
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned %v", err)
		}
	}()

	path := filepath.Join(dir, "new.osu")
	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	written := false
	for !written {
		writeChart(t, path, chart("Live", "Band", "Hard"))
		select {
		case ev := <-events:
			if ev.Kind == EventIndexed && ev.Path == path {
				written = true
			}
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no index event")
		}
	}
	waitFor(t, events, func() bool {
		res, _ := lib.Search(context.Background(), "Live")
		return len(res) == 1 && res[0].Title == "Live"
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, func() bool {
		n, _ := lib.Count(context.Background())
		return n == 0
	})
}

func waitFor(t *testing.T, events <-chan Event, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-events:
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not reached")
		}
	}
}

func TestWatchRecoversPanic(t *testing.T) {
	lib := openTest(t)
	dir := t.TempDir()
	done := make(chan error, 1)
	go func() {
		done <- lib.Watch(context.Background(), dir, func(Event) { panic("handler") })
	}()

	deadline := time.After(5 * time.Second)
	for {
		writeChart(t, filepath.Join(dir, "p.osu"), chart("P", "Q", "R"))
		select {
		case err := <-done:
			var pe *PanicError
			if !errors.As(err, &pe) || pe.Value != "handler" {
				t.Errorf("Expected PanicError, got %v", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch did not stop")
		}
	}
}
