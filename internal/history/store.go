package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mathfer/Bot-gemini-middleware/internal/types"
)

// Sink names, used in logs, metrics and PersistenceError.
const (
	SinkJournal = "journal"
	SinkPayload = "payload"
	SinkHistory = "history"
	SinkIDs     = "ids"
	SinkArchive = "archive"
)

const maxNameRunes = 100

// Record is one accepted event as it is written to disk.
type Record struct {
	Timestamp time.Time
	Payload   json.RawMessage
}

// Receipt describes what Persist wrote.
type Receipt struct {
	HistoryFile string
	IDs         []string
	// Degraded lists the non-fatal sinks that failed.
	Degraded []string
}

// PersistenceError is returned when the raw payload log cannot be written.
// The request must fail when this happens.
type PersistenceError struct {
	Sink string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Sink, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Archiver mirrors accepted events into a secondary store.
type Archiver interface {
	Archive(ctx context.Context, rec Record, ev types.Event) error
}

// Options configures where the store writes.
type Options struct {
	HistoryDir  string
	JournalPath string
	PayloadPath string
	IDsPath     string
	Archiver    Archiver
	// OnSinkFailure is called for every failed sink, fatal or not.
	OnSinkFailure func(sink string)
}

// Store appends accepted events to the journal, the raw payload log, the
// per-requester history arrays and the extracted ID log. Writers to the
// same file are serialized; writers to different files are not.
//
// Locking is in-process only. Two relay processes sharing a data directory
// can interleave read-modify-write cycles on a history file.
type Store struct {
	opts   Options
	locks  *keyLocks
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates the data directories and returns a ready store.
func NewStore(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.HistoryDir == "" {
		return nil, errors.New("history dir is required")
	}
	dirs := []string{opts.HistoryDir}
	for _, p := range []string{opts.JournalPath, opts.PayloadPath, opts.IDsPath} {
		if p != "" {
			dirs = append(dirs, filepath.Dir(p))
		}
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	return &Store{
		opts:   opts,
		locks:  newKeyLocks(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Persist writes ev to every sink. Only a payload log failure is returned as
// an error; every other failure is logged and listed in Receipt.Degraded.
func (s *Store) Persist(ctx context.Context, ev types.Event, raw json.RawMessage) (Receipt, error) {
	rec := Record{Timestamp: s.now(), Payload: raw}
	receipt := Receipt{IDs: ev.ExtractIDs()}

	if s.opts.JournalPath != "" {
		line := fmt.Sprintf("[%s] %s", rec.Timestamp.Format(time.RFC3339Nano), rec.Payload)
		if err := s.appendLines(s.opts.JournalPath, line); err != nil {
			s.degrade(&receipt, SinkJournal, err)
		}
	}

	if err := s.appendLines(s.opts.PayloadPath, string(rec.Payload)); err != nil {
		s.failed(SinkPayload)
		return receipt, &PersistenceError{Sink: SinkPayload, Err: err}
	}

	path, err := s.appendHistory(ev.RequesterID, rec)
	if err != nil {
		s.degrade(&receipt, SinkHistory, err)
	} else {
		receipt.HistoryFile = path
	}

	if s.opts.IDsPath != "" && len(receipt.IDs) > 0 {
		if err := s.appendLines(s.opts.IDsPath, receipt.IDs...); err != nil {
			s.degrade(&receipt, SinkIDs, err)
		}
	}

	if s.opts.Archiver != nil {
		if err := s.opts.Archiver.Archive(ctx, rec, ev); err != nil {
			s.degrade(&receipt, SinkArchive, err)
		}
	}

	return receipt, nil
}

func (s *Store) degrade(r *Receipt, sink string, err error) {
	r.Degraded = append(r.Degraded, sink)
	s.logger.Error("history sink failed", "sink", sink, "error", err)
	s.failed(sink)
}

func (s *Store) failed(sink string) {
	if s.opts.OnSinkFailure != nil {
		s.opts.OnSinkFailure(sink)
	}
}

// appendLines writes each line followed by a newline in a single write.
func (s *Store) appendLines(path string, lines ...string) error {
	if path == "" {
		return errors.New("no path configured")
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func (s *Store) appendHistory(requester string, rec Record) (string, error) {
	path := filepath.Join(s.opts.HistoryDir, HistoryFilename(requester))

	unlock := s.locks.Lock(path)
	defer unlock()

	entries, err := readArray(path)
	if err != nil {
		s.logger.Warn("history file unreadable, starting a new array", "file", path, "error", err)
		s.preserveCorrupt(path)
		entries = nil
	}
	entries = append(entries, rec.Payload)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// preserveCorrupt keeps a copy of an unreadable history file next to the
// new one. Failure to do so is only logged.
func (s *Store) preserveCorrupt(path string) {
	dst := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
	if err := os.Rename(path, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not preserve corrupt history file", "file", path, "error", err)
	}
}

// History returns the stored payloads for a requester, oldest first.
func (s *Store) History(requester string) ([]json.RawMessage, error) {
	path := filepath.Join(s.opts.HistoryDir, HistoryFilename(requester))
	unlock := s.locks.Lock(path)
	defer unlock()
	entries, err := readArray(path)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return entries, nil
}

// readArray returns nil for a missing or empty file.
func readArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, base+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

const tempMarker = ".tmp-"

// HistoryFilename maps a requester to its history file name. Characters
// outside [A-Za-z0-9._-] become '_'; when anything was replaced or cut, a
// short hash of the original keeps distinct requesters in distinct files.
func HistoryFilename(requester string) string {
	if requester == "" {
		requester = types.DefaultRequester
	}
	var b strings.Builder
	n := 0
	for _, r := range requester {
		if n == maxNameRunes {
			break
		}
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	safe := b.String()
	if safe != requester {
		sum := sha256.Sum256([]byte(requester))
		safe += "-" + hex.EncodeToString(sum[:4])
	}
	return "history_" + safe + ".json"
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}

// Stats summarizes what is on disk.
type Stats struct {
	JournalBytes int64 `json:"journal_bytes"`
	PayloadBytes int64 `json:"payload_bytes"`
	IDsBytes     int64 `json:"ids_bytes"`
	HistoryFiles int   `json:"history_files"`
	ActiveLocks  int   `json:"active_locks"`
}

// Stats reports file sizes and the number of requester history files.
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		JournalBytes: fileSize(s.opts.JournalPath),
		PayloadBytes: fileSize(s.opts.PayloadPath),
		IDsBytes:     fileSize(s.opts.IDsPath),
		ActiveLocks:  s.locks.size(),
	}
	matches, err := filepath.Glob(filepath.Join(s.opts.HistoryDir, "history_*.json"))
	if err != nil {
		return st, fmt.Errorf("list history files: %w", err)
	}
	st.HistoryFiles = len(matches)
	return st, nil
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
