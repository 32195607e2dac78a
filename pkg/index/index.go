// Package index writes and reads the CSV index of completed problems.
//
// The Writer is owned by a single goroutine: the harvest loop that consumes
// outcomes in submission order. Every row is flushed and synced before Append
// returns, so an interrupted run loses at most the row being written.
package index

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"

	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "harvest_index_rows_written_total",
	Help: "Rows appended to the index file",
})

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("index writer closed")

// Mode selects how an existing index file is treated.
type Mode string

const (
	// ModeTruncate starts a fresh index with only the header.
	ModeTruncate Mode = "truncate"

	// ModeAppend keeps existing rows and continues after them.
	ModeAppend Mode = "append"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTruncate, ModeAppend:
		return Mode(s), nil
	case "":
		return ModeTruncate, nil
	}
	return "", fmt.Errorf("unknown index mode %q (want %q or %q)", s, ModeTruncate, ModeAppend)
}

// Writer appends rows to the index file. It is not safe for concurrent use.
type Writer struct {
	path   string
	file   *os.File
	csv    *csv.Writer
	seen   map[problem.ID]bool
	rows   int
	closed bool

	existing int
	partial  []problem.ID
	repaired bool
}

// Open opens the index at path.
func Open(path string, mode Mode) (*Writer, error) {
	w := &Writer{path: path, seen: make(map[problem.ID]bool)}

	switch mode {
	case ModeTruncate, "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		w.file = f
		w.csv = csv.NewWriter(f)
		if err := w.writeRecord(problem.Header()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write index header: %w", err)
		}

	case ModeAppend:
		repaired, err := trimPartialLine(path)
		if err != nil {
			return nil, err
		}
		w.repaired = repaired

		rows, err := ReadAll(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		for _, r := range rows {
			w.seen[r.ID] = true
			if slices.Contains(r.ImagePaths[:], problem.DownloadFailedText) {
				w.partial = append(w.partial, r.ID)
			}
		}
		w.existing = len(rows)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		w.file = f
		w.csv = csv.NewWriter(f)

		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("stat index: %w", err)
		}
		if info.Size() == 0 {
			if err := w.writeRecord(problem.Header()); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("write index header: %w", err)
			}
		}

	default:
		return nil, fmt.Errorf("unknown index mode %q", mode)
	}

	return w, nil
}

// Path returns the index file path.
func (w *Writer) Path() string {
	return w.path
}

// Has reports whether a row for id is already in the index.
func (w *Writer) Has(id problem.ID) bool {
	return w.seen[id]
}

// Existing returns the number of rows found when the index was opened in append mode.
func (w *Writer) Existing() int {
	return w.existing
}

// Partial returns the already indexed problems whose row records a failed
// image. Append mode does not revisit them.
func (w *Writer) Partial() []problem.ID {
	return w.partial
}

// Repaired reports whether a partial trailing line was removed on open.
func (w *Writer) Repaired() bool {
	return w.repaired
}

// Rows returns the number of rows appended through this writer.
func (w *Writer) Rows() int {
	return w.rows
}

// Append writes row and syncs it to disk.
func (w *Writer) Append(row problem.Row) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.writeRecord(row.Record()); err != nil {
		return fmt.Errorf("append %s: %w", row.ID.Name(), err)
	}
	w.seen[row.ID] = true
	w.rows++
	rowsWritten.Inc()
	return nil
}

// Close flushes and closes the file. Calling Close twice is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *Writer) writeRecord(rec []string) error {
	if err := w.csv.Write(rec); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.file.Sync()
}

// ReadAll parses the index at path. The header must match the fixed column set.
// An empty file yields no rows.
func ReadAll(path string) ([]problem.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses index records from r.
func Read(r io.Reader) ([]problem.Row, error) {
	cr := csv.NewReader(r)
	header := problem.Header()
	cr.FieldsPerRecord = len(header)

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if !slices.Equal(first, header) {
		return nil, fmt.Errorf("unexpected index header %q", first)
	}

	var rows []problem.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		row, err := problem.RowFromRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("index line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// trimPartialLine removes an unterminated final record, which is what an
// interrupted write leaves behind. Records always end in a newline, so the
// file is cut after the last record that does.
func trimPartialLine(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read index: %w", err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return false, nil
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	var cut int64
	for {
		if _, err := cr.Read(); err != nil {
			break
		}
		if off := cr.InputOffset(); off > 0 && data[off-1] == '\n' {
			cut = off
		}
	}

	if err := os.Truncate(path, cut); err != nil {
		return false, fmt.Errorf("trim partial index line: %w", err)
	}
	return true, nil
}
