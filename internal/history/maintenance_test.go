package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeNumberedLines(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func age(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestMaintain_CompactsOldLogs(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, testOptions(dir))
	now := time.Now()
	s.now = func() time.Time { return now }

	writeNumberedLines(t, s.opts.JournalPath, 1500)
	age(t, s.opts.JournalPath, now.Add(-8*24*time.Hour))

	// Recent file is left alone even though it is long.
	writeNumberedLines(t, s.opts.PayloadPath, 1500)
	age(t, s.opts.PayloadPath, now.Add(-time.Hour))

	report := s.Maintain(DefaultMaintenancePolicy())
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if len(report.Compacted) != 1 || report.Compacted[0] != s.opts.JournalPath {
		t.Fatalf("expected journal to be compacted, got %v", report.Compacted)
	}

	lines := readLines(t, s.opts.JournalPath)
	if len(lines) != 1000 {
		t.Fatalf("expected 1000 lines kept, got %d", len(lines))
	}
	if lines[0] != "line 501" || lines[999] != "line 1500" {
		t.Errorf("expected the last 1000 lines, got %q .. %q", lines[0], lines[999])
	}

	backup := s.opts.JournalPath + ".backup." + now.Format("20060102")
	if got := len(readLines(t, backup)); got != 1500 {
		t.Errorf("expected full backup, got %d lines", got)
	}
	if got := len(readLines(t, s.opts.PayloadPath)); got != 1500 {
		t.Errorf("recent log should be untouched, got %d lines", got)
	}
}

func TestMaintain_ShortOldLogIsBackedUpOnly(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, testOptions(dir))
	now := time.Now()

	writeNumberedLines(t, s.opts.JournalPath, 10)
	age(t, s.opts.JournalPath, now.Add(-10*24*time.Hour))

	report := s.Maintain(DefaultMaintenancePolicy())
	if len(report.Compacted) != 0 {
		t.Errorf("short log should not be rewritten, got %v", report.Compacted)
	}
	if len(report.BackedUp) != 1 {
		t.Errorf("expected a backup, got %v", report.BackedUp)
	}
	if got := len(readLines(t, s.opts.JournalPath)); got != 10 {
		t.Errorf("expected 10 lines, got %d", got)
	}
}

func TestMaintain_PrunesBackupsAndTemp(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, testOptions(dir))
	now := time.Now()

	oldBackup := s.opts.JournalPath + ".backup.20200101"
	newBackup := s.opts.JournalPath + ".backup.20990101"
	for _, p := range []string{oldBackup, newBackup} {
		if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	age(t, oldBackup, now.Add(-31*24*time.Hour))

	staleTemp := filepath.Join(s.opts.HistoryDir, "history_a.json"+tempMarker+"123")
	freshTemp := filepath.Join(s.opts.HistoryDir, "history_b.json"+tempMarker+"456")
	for _, p := range []string{staleTemp, freshTemp} {
		if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	age(t, staleTemp, now.Add(-2*time.Hour))

	report := s.Maintain(DefaultMaintenancePolicy())

	if len(report.RemovedBackups) != 1 || report.RemovedBackups[0] != filepath.Base(oldBackup) {
		t.Errorf("expected old backup removed, got %v", report.RemovedBackups)
	}
	if _, err := os.Stat(newBackup); err != nil {
		t.Errorf("recent backup should remain: %v", err)
	}
	if len(report.RemovedTemp) != 1 || report.RemovedTemp[0] != filepath.Base(staleTemp) {
		t.Errorf("expected stale temp removed, got %v", report.RemovedTemp)
	}
	if _, err := os.Stat(freshTemp); err != nil {
		t.Errorf("fresh temp should remain: %v", err)
	}
}

func TestMaintain_ExtraFiles(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, testOptions(dir))
	now := time.Now()

	appLog := filepath.Join(dir, "logs", "app.log")
	os.MkdirAll(filepath.Dir(appLog), 0o755)
	writeNumberedLines(t, appLog, 1200)
	age(t, appLog, now.Add(-9*24*time.Hour))

	p := DefaultMaintenancePolicy()
	p.KeepLines = 100
	report := s.Maintain(p, appLog)
	if len(report.Compacted) != 1 || report.Compacted[0] != appLog {
		t.Fatalf("expected app log compacted, got %v", report.Compacted)
	}
	if got := len(readLines(t, appLog)); got != 100 {
		t.Errorf("expected 100 lines, got %d", got)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeNumberedLines(t, path, 120)

	lines, total, err := Tail(path, 50)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if total != 120 {
		t.Errorf("expected total 120, got %d", total)
	}
	if len(lines) != 50 || lines[0] != "line 71" || lines[49] != "line 120" {
		t.Errorf("unexpected tail: first=%q last=%q len=%d", lines[0], lines[len(lines)-1], len(lines))
	}

	lines, _, err = Tail(path, 500)
	if err != nil || len(lines) != 120 {
		t.Errorf("expected whole file, got %d lines err=%v", len(lines), err)
	}

	if _, _, err := Tail(filepath.Join(t.TempDir(), "missing"), 10); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
