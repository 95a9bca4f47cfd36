package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// FollowInterval is how often Follow polls the log file for new lines.
const FollowInterval = 200 * time.Millisecond

// Entry is one line of the JSON log written by Setup.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
	// Valid is false when the line is not a JSON log record.
	Valid bool
}

// ParseEntry decodes one log line.
func ParseEntry(line string) Entry {
	e := Entry{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return e
	}

	e.Valid = true
	if s, ok := fields["time"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	e.Level, _ = fields["level"].(string)
	e.Msg, _ = fields["msg"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	e.Attrs = fields
	return e
}

// ViewerConfig filters and formats entries.
type ViewerConfig struct {
	// Level is the minimum level shown. Empty shows everything.
	Level string
	// Pattern, when set, must match the raw line.
	Pattern *regexp.Regexp
	NoColor bool
}

// Viewer reads indexgen log files.
type Viewer struct {
	cfg      ViewerConfig
	minLevel slog.Level
	out      io.Writer
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{cfg: cfg, out: out, minLevel: ParseLevel(cfg.Level)}
}

// Match reports whether e passes the level and pattern filters.
func (v *Viewer) Match(e Entry) bool {
	if v.cfg.Level != "" && (!e.Valid || ParseLevel(e.Level) < v.minLevel) {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Tail returns the last n matching entries of the file at path.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ring []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e := ParseEntry(line)
		if !v.Match(e) {
			continue
		}
		ring = append(ring, e)
		if n > 0 && len(ring) > n {
			ring = ring[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return ring, nil
}

// Follow sends entries appended to path until ctx is done. A file that
// shrinks, as after rotation, is reopened from the start.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- Entry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	reader := bufio.NewReader(f)
	var partial string

	ticker := time.NewTicker(FollowInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			_ = f.Close()
			if f, err = os.Open(path); err != nil {
				return fmt.Errorf("failed to reopen rotated log file: %w", err)
			}
			reader.Reset(f)
			offset, partial = 0, ""
		}

		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			e := ParseEntry(line)
			if !v.Match(e) {
				continue
			}
			select {
			case entries <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Format renders e as "15:04:05.000 LEVEL msg key=value ...".
func (v *Viewer) Format(e Entry) string {
	if !e.Valid {
		return e.Raw
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Time.Local().Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(e.Level))
	b.WriteByte(' ')
	b.WriteString(e.Msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// Print writes every entry on its own line.
func (v *Viewer) Print(entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.Format(e))
	}
}

func (v *Viewer) formatLevel(level string) string {
	label := fmt.Sprintf("%-5s", strings.ToUpper(level))
	if v.cfg.NoColor {
		return label
	}
	var color string
	switch strings.ToUpper(level) {
	case "DEBUG":
		color = "\033[90m"
	case "INFO":
		color = "\033[36m"
	case "WARN":
		color = "\033[33m"
	case "ERROR":
		color = "\033[31m"
	default:
		return label
	}
	return color + label + "\033[0m"
}
