// Package eventlog appends triggered alerts to a durable CSV audit file.
package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

// AnonymousLabel replaces the driver identity when anonymization is on.
const AnonymousLabel = "driver"

// Header is the fixed first row of every event log.
var Header = []string{"timestamp", "subject", "alert_level", "reasons", "ear", "perclos", "yawn", "stress"}

// Record is one triggered alert.
type Record struct {
	Time    time.Time
	Subject string
	Status  wellness.Status
	EAR     float64
	PERCLOS float64
	Yawn    float64
	Stress  float64
}

// Config holds event log settings.
type Config struct {
	Path      string
	Anonymize bool
}

// Log is an append-only CSV file. Writes are best effort: failures are logged
// and dropped, never retried. It is safe for concurrent use.
type Log struct {
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex

	// OnWriteError is called after a failed append, if set.
	OnWriteError func(err error)
}

// New creates the log, writing the header if the file does not exist yet.
func New(cfg Config, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		cfg:    cfg,
		logger: logger.With("component", "eventlog"),
	}
	if err := l.ensureHeader(); err != nil {
		l.logger.Warn("failed to initialize event log", "path", cfg.Path, "error", err)
	}
	return l
}

// Label returns the subject label written for identity.
func (l *Log) Label(identity string) string {
	if l.cfg.Anonymize {
		return AnonymousLabel
	}
	return identity
}

// Row formats a record as CSV fields.
func (l *Log) Row(r Record) []string {
	return []string{
		strconv.FormatInt(r.Time.Unix(), 10),
		l.Label(r.Subject),
		r.Status.Level.String(),
		r.Status.JoinedReasons(),
		fmt.Sprintf("%.3f", r.EAR),
		fmt.Sprintf("%.3f", r.PERCLOS),
		fmt.Sprintf("%.1f", r.Yawn),
		fmt.Sprintf("%.2f", r.Stress),
	}
}

// Append writes one record.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.write(l.Row(r)); err != nil {
		l.logger.Warn("failed to append event", "path", l.cfg.Path, "error", err)
		if l.OnWriteError != nil {
			l.OnWriteError(err)
		}
	}
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.cfg.Path
}

func (l *Log) write(row []string) error {
	if err := l.ensureHeader(); err != nil {
		return err
	}

	f, err := os.OpenFile(l.cfg.Path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	return writeRow(f, row)
}

// ensureHeader creates the file with its header row if it does not exist.
func (l *Log) ensureHeader() error {
	if _, err := os.Stat(l.cfg.Path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat event log: %w", err)
	}

	if dir := filepath.Dir(l.cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.cfg.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("create event log: %w", err)
	}
	defer f.Close()

	return writeRow(f, Header)
}

func writeRow(w io.Writer, row []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Tail returns up to n most recent data rows of the log at path, oldest first.
// The header row is not included.
func Tail(path string, n int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}
