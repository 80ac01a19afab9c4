package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/diag"
	"github.com/arenalab/tracekit/internal/metrics"
)

// writer owns the queue and active file for one (category, component)
// pair. In buffered mode a single drain goroutine performs all blocking
// I/O; in synchronous mode writes happen under mu on the caller.
type writer struct {
	path      string
	category  string
	component string
	cfg       *config.Config
	log       *diag.Logger
	stats     *metrics.Pipeline

	ch       chan *Record
	done     chan struct{}
	finished chan struct{}
	closed   atomic.Bool
	dropped  atomic.Uint64

	mu   sync.Mutex
	file *os.File
	size int64
}

func newWriter(cfg *config.Config, category, component string, log *diag.Logger, stats *metrics.Pipeline) (*writer, error) {
	dir := filepath.Join(cfg.TraceDir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create category dir: %w", err)
	}

	w := &writer{
		path:      filepath.Join(dir, component+".jsonl"),
		category:  category,
		component: component,
		cfg:       cfg,
		log:       log,
		stats:     stats,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	if cfg.Buffered {
		w.ch = make(chan *Record, cfg.BufferSize)
		w.done = make(chan struct{})
		w.finished = make(chan struct{})
		go w.run()
	}
	return w, nil
}

// enqueue hands a record to the drain worker. It never blocks: a full
// queue drops the record, which is counted but otherwise silent.
func (w *writer) enqueue(rec *Record) {
	if w.closed.Load() {
		w.drop()
		return
	}
	if !w.cfg.Buffered {
		w.mu.Lock()
		w.write(rec)
		w.mu.Unlock()
		return
	}
	select {
	case w.ch <- rec:
		w.stats.QueueDepth.WithLabelValues(w.category, w.component).Set(float64(len(w.ch)))
	default:
		w.drop()
	}
}

func (w *writer) drop() {
	w.dropped.Add(1)
	w.stats.RecordsDropped.WithLabelValues(w.category, w.component).Inc()
}

// run is the drain loop; it exclusively owns the file in buffered mode.
func (w *writer) run() {
	for {
		select {
		case rec := <-w.ch:
			w.write(rec)
			w.stats.QueueDepth.WithLabelValues(w.category, w.component).Set(float64(len(w.ch)))
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain flushes whatever is already queued, then closes the file.
func (w *writer) drain() {
	defer close(w.finished)
	for {
		select {
		case rec := <-w.ch:
			w.write(rec)
		default:
			if w.file != nil {
				w.file.Close()
				w.file = nil
			}
			return
		}
	}
}

// test hook, nil outside tests
var testHookBeforeWrite func()

func (w *writer) write(rec *Record) {
	if testHookBeforeWrite != nil {
		testHookBeforeWrite()
	}
	line, err := sonic.Marshal(rec)
	if err != nil {
		w.stats.EncodeFailures.WithLabelValues(w.category, w.component).Inc()
		w.log.Warn("trace record serialization failed",
			diag.String("category", w.category),
			diag.String("component", w.component),
			diag.Error(err))
		return
	}
	line = append(line, '\n')

	if w.cfg.MaxBytes > 0 && w.size+int64(len(line)) >= w.cfg.MaxBytes {
		if err := w.rotate(); err != nil {
			w.stats.WriteFailures.WithLabelValues(w.category, w.component).Inc()
			w.log.Warn("trace file rotation failed", diag.String("path", w.path), diag.Error(err))
		}
	}
	if w.file == nil {
		return
	}
	n, err := w.file.Write(line)
	w.size += int64(n)
	if err != nil {
		w.stats.WriteFailures.WithLabelValues(w.category, w.component).Inc()
		w.log.Warn("trace file append failed", diag.String("path", w.path), diag.Error(err))
		return
	}
	w.stats.RecordsWritten.WithLabelValues(w.category, w.component).Inc()
}

// rotate closes the active file, shifts the numbered backlog up by one
// slot, moves the active file into slot 1 (optionally zstd-compressed)
// and reopens a fresh active file. Slots beyond BackupCount are pruned.
func (w *writer) rotate() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	if w.cfg.BackupCount > 0 {
		removeBacklog(w.backlogName(w.cfg.BackupCount))
		for i := w.cfg.BackupCount - 1; i >= 1; i-- {
			renameBacklog(w.backlogName(i), w.backlogName(i+1))
		}
		if w.cfg.CompressBacklog {
			if err := compressFile(w.path, w.backlogName(1)+".zst"); err != nil {
				// Keep the plain file rather than losing history.
				os.Rename(w.path, w.backlogName(1))
			} else {
				os.Remove(w.path)
			}
		} else {
			os.Rename(w.path, w.backlogName(1))
		}
	} else {
		os.Remove(w.path)
	}

	w.stats.Rotations.WithLabelValues(w.category, w.component).Inc()
	return w.open()
}

func (w *writer) backlogName(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

func (w *writer) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// close stops accepting records and waits up to grace for the drain
// worker to flush. Records still queued past the deadline are lost,
// which is accepted behavior on teardown.
func (w *writer) close(grace time.Duration) error {
	if w.closed.Swap(true) {
		return nil
	}
	if !w.cfg.Buffered {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.file != nil {
			err := w.file.Close()
			w.file = nil
			return err
		}
		return nil
	}
	close(w.done)
	select {
	case <-w.finished:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("trace writer %s/%s: flush deadline exceeded", w.category, w.component)
	}
}

// removeBacklog removes a backlog slot in either plain or compressed form.
func removeBacklog(name string) {
	os.Remove(name)
	os.Remove(name + ".zst")
}

// renameBacklog shifts a backlog slot, preserving its compression form.
func renameBacklog(from, to string) {
	if _, err := os.Stat(from); err == nil {
		os.Rename(from, to)
	}
	if _, err := os.Stat(from + ".zst"); err == nil {
		os.Rename(from+".zst", to+".zst")
	}
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
