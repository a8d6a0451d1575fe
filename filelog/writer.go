package filelog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// TimestampLayout prefixes every line, always in UTC.
	TimestampLayout = "2006-01-02 15:04:05.000"

	dayLayout = "2006-01-02"
)

// Writer appends timestamped lines to the current log file.
type Writer struct {
	cfg Config

	mu     sync.Mutex
	file   *os.File
	path   string
	size   int64
	seq    int
	closed bool

	errLog rate.Sometimes
}

// New returns a Writer for cfg. Nothing touches the disk until the first line.
func New(cfg Config) *Writer {
	def := DefaultConfig()
	if cfg.Directory == "" {
		cfg.Directory = def.Directory
	}
	if cfg.FileName == "" {
		cfg.FileName = def.FileName
	}
	if cfg.Extension == "" {
		cfg.Extension = def.Extension
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	return &Writer{
		cfg:    cfg,
		errLog: rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// WriteLog appends "[timestamp] line" to the current file, rotating first
// if the day changed or the size ceiling was reached. Blank lines are ignored.
func (w *Writer) WriteLog(line string) {
	if !w.cfg.Enabled || strings.TrimSpace(line) == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	now := w.cfg.Now().UTC()
	if err := w.rotate(now); err != nil {
		w.logError(err, "rotate log file")
		return
	}

	n, err := w.file.WriteString("[" + now.Format(TimestampLayout) + "] " + line + "\n")
	w.size += int64(n)
	if err != nil {
		w.logError(err, "write log file")
	}
}

// Path returns the file most recently written to, or "" before the first write.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Close closes the current file. Later writes are dropped.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) rotate(now time.Time) error {
	want, err := w.target(now)
	if err != nil {
		return err
	}
	if w.file != nil && want == w.path {
		return nil
	}

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			w.logError(err, "close log file")
		}
		w.file = nil
	}

	if err := os.MkdirAll(w.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("filelog: create directory: %w", err)
	}
	f, err := os.OpenFile(want, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("filelog: open %s: %w", want, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("filelog: stat %s: %w", want, err)
	}

	w.file, w.path, w.size = f, want, info.Size()
	w.prune()
	return nil
}

// target returns the path the next line belongs in.
func (w *Writer) target(now time.Time) (string, error) {
	switch {
	case w.cfg.RotateByDay:
		return w.join("-" + now.Format(dayLayout)), nil

	case w.cfg.MaxFileSizeBytes > 0:
		if w.seq == 0 {
			seq, err := w.highestSequence()
			if err != nil {
				return "", err
			}
			w.seq = max(seq, 1)
			if size, ok := fileSize(w.sequencePath(w.seq)); ok && size >= w.cfg.MaxFileSizeBytes {
				w.seq++
			}
		} else if w.file != nil && w.size >= w.cfg.MaxFileSizeBytes {
			w.seq++
		}
		return w.sequencePath(w.seq), nil

	default:
		return w.join(""), nil
	}
}

func (w *Writer) join(suffix string) string {
	return filepath.Join(w.cfg.Directory, w.cfg.FileName+suffix+w.cfg.Extension)
}

func (w *Writer) sequencePath(seq int) string {
	return w.join(fmt.Sprintf("-%03d", seq))
}

// highestSequence scans the directory for base-NNN.ext files.
func (w *Writer) highestSequence() (int, error) {
	entries, err := os.ReadDir(w.cfg.Directory)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("filelog: read directory: %w", err)
	}

	prefix := w.cfg.FileName + "-"
	highest := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, w.cfg.Extension) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), w.cfg.Extension)
		seq, err := strconv.Atoi(digits)
		if err != nil || seq < 0 {
			continue
		}
		highest = max(highest, seq)
	}
	return highest, nil
}

// prune deletes the oldest base-*.ext files beyond MaxFilesToKeep.
// Modification time orders the files; the current file is always kept.
func (w *Writer) prune() {
	if w.cfg.MaxFilesToKeep <= 0 {
		return
	}

	matches, err := filepath.Glob(filepath.Join(w.cfg.Directory, w.cfg.FileName+"-*"+w.cfg.Extension))
	if err != nil {
		w.logError(err, "list log files")
		return
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	files := make([]candidate, 0, len(matches))
	for _, m := range matches {
		if m == w.path {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, candidate{path: m, modTime: info.ModTime()})
	}

	keep := w.cfg.MaxFilesToKeep - 1
	if len(files) <= keep {
		return
	}
	slices.SortFunc(files, func(a, b candidate) int {
		return b.modTime.Compare(a.modTime)
	})
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			w.logError(err, "delete old log file")
		}
	}
}

func (w *Writer) logError(err error, msg string) {
	w.errLog.Do(func() {
		w.cfg.Logger.Error().Err(err).Str("directory", w.cfg.Directory).Msg(msg)
	})
}

func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}
