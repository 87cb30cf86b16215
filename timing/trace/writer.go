// Package trace records memory transactions in CSV files.
package trace

import (
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/gpucachesim/timing/mem"
)

type row struct {
	cycle   uint64
	id      string
	command mem.Command
	address uint64
	size    int
	source  mem.SourceUnit
	unit    int
	ticket  uint32
}

// Writer is a mem.Tracer that stores transactions into a CSV file.
type Writer struct {
	path string
	file *os.File

	rows       []row
	bufferSize int
	closed     bool
}

// NewWriter creates the trace file. An empty path picks a unique file name
// in the working directory. An existing file is never overwritten. The
// file is flushed and closed at exit if Close was not called.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		path = "gpucachesim_trace_" + xid.New().String() + ".csv"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	w := &Writer{
		path:       path,
		file:       file,
		bufferSize: 1000,
	}

	fmt.Fprintf(file, "cycle,id,command,address,size,source,unit,ticket\n")

	atexit.Register(func() {
		if err := w.Close(); err != nil {
			panic(err)
		}
	})

	return w, nil
}

// Path returns the trace file name.
func (w *Writer) Path() string {
	return w.path
}

// Trace records a transaction.
func (w *Writer) Trace(cycle uint64, t *mem.Transaction) {
	w.rows = append(w.rows, row{
		cycle:   cycle,
		id:      t.ID,
		command: t.Command,
		address: t.Address,
		size:    t.Size,
		source:  t.Source,
		unit:    t.UnitID,
		ticket:  t.Ticket,
	})

	if len(w.rows) >= w.bufferSize {
		if err := w.Flush(); err != nil {
			panic(err)
		}
	}
}

// Flush writes the buffered rows to the file.
func (w *Writer) Flush() error {
	if w.closed {
		return nil
	}

	for _, r := range w.rows {
		_, err := fmt.Fprintf(w.file, "%d,%s,%s,%#x,%d,%s,%d,%d\n",
			r.cycle,
			r.id,
			r.command,
			r.address,
			r.size,
			r.source,
			r.unit,
			r.ticket,
		)
		if err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	w.rows = nil

	return nil
}

// Close flushes the buffered rows and closes the file. Closing twice is a
// no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	if err := w.Flush(); err != nil {
		return err
	}

	w.closed = true

	return w.file.Close()
}
