package query

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/diag"
	"github.com/arenalab/tracekit/internal/logging"
)

// Iterator streams filtered records from a fixed list of files. Each
// call to Reader.Read produces a fresh, restartable iterator.
type Iterator struct {
	files  []string
	filter Filter

	idx     int
	file    io.Closer
	scanner *bufio.Scanner
	rec     *logging.Record
	count   int
	err     error
}

func newIterator(files []string, filter Filter) *Iterator {
	return &Iterator{files: files, filter: filter}
}

// Next advances to the next matching record. It returns false when the
// file list is exhausted or the filter's limit is reached.
func (it *Iterator) Next() bool {
	if it.filter.Limit > 0 && it.count >= it.filter.Limit {
		return false
	}
	for {
		if it.scanner == nil {
			if !it.openNext() {
				return false
			}
		}
		if !it.scanner.Scan() {
			if err := it.scanner.Err(); err != nil {
				diag.Default().Warn("trace file scan aborted", diag.Error(err))
			}
			it.closeCurrent()
			continue
		}
		line := strings.TrimSpace(it.scanner.Text())
		if line == "" {
			continue
		}
		rec := parseLine(line)
		if !it.filter.match(rec) {
			continue
		}
		it.rec = rec
		it.count++
		return true
	}
}

// Record returns the record produced by the last successful Next.
func (it *Iterator) Record() *logging.Record { return it.rec }

// Err returns the first fatal iteration error, if any. Unreadable files
// and malformed lines are not fatal.
func (it *Iterator) Err() error { return it.err }

// Close releases the currently open file.
func (it *Iterator) Close() error {
	it.closeCurrent()
	return nil
}

func (it *Iterator) openNext() bool {
	for it.idx < len(it.files) {
		path := it.files[it.idx]
		it.idx++

		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				diag.Default().Warn("trace file unreadable", diag.String("path", path), diag.Error(err))
			}
			continue
		}

		var reader io.Reader = f
		if strings.HasSuffix(path, ".zst") {
			dec, err := zstd.NewReader(f)
			if err != nil {
				diag.Default().Warn("trace backlog undecodable", diag.String("path", path), diag.Error(err))
				f.Close()
				continue
			}
			reader = dec.IOReadCloser()
		}

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
		it.file = f
		it.scanner = scanner
		return true
	}
	return false
}

func (it *Iterator) closeCurrent() {
	if it.file != nil {
		it.file.Close()
		it.file = nil
	}
	it.scanner = nil
}

// parseLine decodes one persisted line; a malformed line becomes a
// synthesized ERROR record rather than an aborting error.
func parseLine(line string) *logging.Record {
	var rec logging.Record
	if err := sonic.Unmarshal([]byte(line), &rec); err != nil {
		return &logging.Record{
			Timestamp: time.Now().UTC(),
			Level:     config.ErrorLevel,
			Component: "parser",
			Event:     "parse_error",
			Message:   fmt.Sprintf("failed to parse record: %v", err),
			Data:      map[string]any{"raw": line},
		}
	}
	return &rec
}

// resolveFiles lists the files implied by the category/component
// filters: for each pair, rotated backlog oldest-first then the active
// file, so records stream roughly in write order.
func (r *Reader) resolveFiles(category, component string) []string {
	var categories []string
	if category != "" {
		categories = []string{category}
	} else {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			if e.IsDir() {
				categories = append(categories, e.Name())
			}
		}
		sort.Strings(categories)
	}

	var files []string
	for _, cat := range categories {
		dir := filepath.Join(r.dir, cat)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var components []string
		if component != "" {
			components = []string{component}
		} else {
			seen := map[string]bool{}
			for _, e := range entries {
				if name, ok := componentOf(e.Name()); ok && !seen[name] {
					seen[name] = true
					components = append(components, name)
				}
			}
			sort.Strings(components)
		}

		for _, comp := range components {
			files = append(files, pairFiles(dir, comp, entries)...)
		}
	}
	return files
}

// componentOf extracts the component name from an active or rotated
// file name, e.g. "engine.jsonl", "engine.jsonl.3", "engine.jsonl.3.zst".
func componentOf(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".zst")
	if i := strings.LastIndex(name, ".jsonl"); i >= 0 {
		suffix := name[i+len(".jsonl"):]
		if suffix != "" {
			if _, err := strconv.Atoi(strings.TrimPrefix(suffix, ".")); err != nil {
				return "", false
			}
		}
		return name[:i], true
	}
	return "", false
}

// pairFiles orders one pair's files: highest backlog slot (oldest) down
// to slot 1, then the active file.
func pairFiles(dir, component string, entries []os.DirEntry) []string {
	active := component + ".jsonl"
	slots := map[int]string{}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".zst")
		prefix := active + "."
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		slots[n] = filepath.Join(dir, e.Name())
	}

	nums := make([]int, 0, len(slots))
	for n := range slots {
		nums = append(nums, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(nums)))

	files := make([]string, 0, len(nums)+1)
	for _, n := range nums {
		files = append(files, slots[n])
	}
	return append(files, filepath.Join(dir, active))
}
