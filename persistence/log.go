package persistence

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hermesagent/hermes/core"
)

// Level is a log severity matching spec §6.4's format.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogRepository appends structured lines to log/hermes-YYYYMMDD.log (and
// debug_log/hermes-YYYYMMDD.log for Debug-level records), in the bit-exact
// format from spec §6.4:
//
//	<ISO-8601-with-offset> [LEVEL] [COMPONENT] message k1=v1 k2=v2 …
//
// Concurrent appends from multiple stages are serialized by mu so lines
// never interleave (spec §5).
type LogRepository struct {
	BaseDir string

	mu sync.Mutex
}

func NewLogRepository(baseDir string) *LogRepository {
	return &LogRepository{BaseDir: baseDir}
}

func (r *LogRepository) logDir() string      { return filepath.Join(r.BaseDir, "log") }
func (r *LogRepository) debugLogDir() string { return filepath.Join(r.BaseDir, "debug_log") }

func (r *LogRepository) pathFor(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("hermes-%s.log", day.Format("20060102")))
}

// Write appends one line for (level, component, message, kv...). kv must be
// an even number of string-able arguments forming key/value pairs.
func (r *LogRepository) Write(level Level, component, message string, kv ...interface{}) error {
	now := time.Now()
	line := formatLine(now, level, component, message, kv...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := appendLine(r.logDir(), r.pathFor(r.logDir(), now), line); err != nil {
		return err
	}
	if level == LevelDebug {
		if err := appendLine(r.debugLogDir(), r.pathFor(r.debugLogDir(), now), line); err != nil {
			return err
		}
	}
	return nil
}

func formatLine(ts time.Time, level Level, component, message string, kv ...interface{}) string {
	var b strings.Builder
	b.WriteString(ts.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(string(level))
	b.WriteString("] [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(message)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

func appendLine(dir, path, line string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewError("LogRepository.Write", core.KindFatal, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return core.NewError("LogRepository.Write", core.KindFatal, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return core.NewError("LogRepository.Write", core.KindFatal, err)
	}
	return nil
}

// Tail returns the last n lines across log files, newest-day-last order
// preserved within each file.
func (r *LogRepository) Tail(n int) ([]string, error) {
	files, err := r.logFiles()
	if err != nil {
		return nil, err
	}
	var all []string
	for _, f := range files {
		lines, err := readLines(f)
		if err != nil {
			continue
		}
		all = append(all, lines...)
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (r *LogRepository) logFiles() ([]string, error) {
	entries, err := os.ReadDir(r.logDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewError("LogRepository.logFiles", core.KindFatal, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(r.logDir(), e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Stream follows today's log file like `tail -f`, polling every interval
// (spec §4.10 caps this at ≤100ms) and sending new lines on the returned
// channel until stop is closed.
func (r *LogRepository) Stream(stop <-chan struct{}, interval time.Duration) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		path := r.pathFor(r.logDir(), time.Now())
		var offset int64

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lines, newOffset, err := readNewLines(path, offset)
				if err != nil {
					continue
				}
				offset = newOffset
				for _, line := range lines {
					select {
					case out <- line:
					case <-stop:
						return
					}
				}
			}
		}
	}()
	return out
}

func readNewLines(path string, offset int64) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return nil, offset, err
	}
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	pos, err := f.Seek(0, 1)
	if err != nil {
		return lines, offset, err
	}
	return lines, pos, scanner.Err()
}
