package history

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaintenancePolicy controls log compaction.
type MaintenancePolicy struct {
	// Logs not modified for longer than LogMaxAge are backed up and cut to KeepLines.
	LogMaxAge time.Duration
	KeepLines int
	// Backups older than BackupMaxAge are deleted.
	BackupMaxAge time.Duration
	// Leftover temp files older than TempMaxAge are deleted.
	TempMaxAge time.Duration
}

func DefaultMaintenancePolicy() MaintenancePolicy {
	return MaintenancePolicy{
		LogMaxAge:    7 * 24 * time.Hour,
		KeepLines:    1000,
		BackupMaxAge: 30 * 24 * time.Hour,
		TempMaxAge:   time.Hour,
	}
}

// MaintenanceReport lists what a maintenance run touched.
type MaintenanceReport struct {
	Compacted      []string `json:"compacted"`
	BackedUp       []string `json:"backed_up"`
	RemovedBackups []string `json:"removed_backups"`
	RemovedTemp    []string `json:"removed_temp"`
	Errors         []string `json:"errors,omitempty"`
}

const backupMarker = ".backup."

// Maintain compacts the store's own logs plus any extra files (such as the
// application log), prunes old backups and removes stale temp files.
// Problems with individual files are collected in the report.
func (s *Store) Maintain(p MaintenancePolicy, extra ...string) MaintenanceReport {
	now := s.now()
	var report MaintenanceReport

	logs := []string{s.opts.JournalPath, s.opts.PayloadPath}
	logs = append(logs, extra...)
	for _, path := range logs {
		if path == "" {
			continue
		}
		s.compact(path, now, p, &report)
	}

	dirs := map[string]bool{}
	for _, path := range logs {
		if path != "" {
			dirs[filepath.Dir(path)] = true
		}
	}
	for dir := range dirs {
		s.pruneBackups(dir, now, p.BackupMaxAge, &report)
	}
	s.pruneTemp(now, p.TempMaxAge, &report)
	return report
}

func (s *Store) compact(path string, now time.Time, p MaintenancePolicy, report *MaintenanceReport) {
	unlock := s.locks.Lock(path)
	defer unlock()

	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	if now.Sub(fi.ModTime()) <= p.LogMaxAge {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	backup := path + backupMarker + now.Format("20060102")
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("backup %s: %v", path, err))
		return
	}
	report.BackedUp = append(report.BackedUp, backup)

	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= p.KeepLines {
		return
	}
	// Rewritten in place: the application log is held open with O_APPEND
	// by the logger and must keep the same inode.
	kept := strings.Join(lines[len(lines)-p.KeepLines:], "")
	if err := os.WriteFile(path, []byte(kept), 0o644); err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	report.Compacted = append(report.Compacted, path)
	s.logger.Info("log compacted", "file", path, "kept_lines", p.KeepLines, "backup", backup)
}

func (s *Store) pruneBackups(dir string, now time.Time, maxAge time.Duration, report *MaintenanceReport) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), backupMarker) {
			continue
		}
		if s.removeIfOlder(filepath.Join(dir, e.Name()), now, maxAge, report) {
			report.RemovedBackups = append(report.RemovedBackups, e.Name())
		}
	}
}

func (s *Store) pruneTemp(now time.Time, maxAge time.Duration, report *MaintenanceReport) {
	entries, err := os.ReadDir(s.opts.HistoryDir)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), tempMarker) {
			continue
		}
		if s.removeIfOlder(filepath.Join(s.opts.HistoryDir, e.Name()), now, maxAge, report) {
			report.RemovedTemp = append(report.RemovedTemp, e.Name())
		}
	}
}

func (s *Store) removeIfOlder(path string, now time.Time, maxAge time.Duration, report *MaintenanceReport) bool {
	fi, err := os.Stat(path)
	if err != nil || now.Sub(fi.ModTime()) <= maxAge {
		return false
	}
	if err := os.Remove(path); err != nil {
		report.Errors = append(report.Errors, err.Error())
		return false
	}
	return true
}

// Tail returns up to n trailing lines of path and the total line count.
func Tail(path string, n int) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	total := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		total++
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan %s: %w", path, err)
	}
	return ring, total, nil
}
