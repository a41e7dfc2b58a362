package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Encode writes subs in SRT layout: index, cue line, text, blank separator.
func Encode(w io.Writer, subs List) error {
	bw := bufio.NewWriter(w)
	for i, sub := range subs {
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n",
			sub.Index, FormatTimestamp(sub.StartTime), FormatTimestamp(sub.EndTime), sub.Text)
	}
	return bw.Flush()
}

// FormatSRT returns subs as an SRT document.
func FormatSRT(subs List) string {
	var b strings.Builder
	_ = Encode(&b, subs)
	return b.String()
}

// WriteSRTFile writes subs to path through a temp file in the same directory.
func WriteSRTFile(path string, subs List) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".srt-*")
	if err != nil {
		return err
	}
	if err := Encode(tmp, subs); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ParseSRT reads SRT cues from r. Blocks without a cue line or without text
// are dropped; multi-line text is joined with spaces.
func ParseSRT(r io.Reader) (List, error) {
	var (
		list  List
		block []string
	)
	flush := func() {
		if sub, ok := parseBlock(block); ok {
			list = append(list, sub)
		}
		block = block[:0]
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return list, scanner.Err()
}

func parseBlock(lines []string) (Subtitle, bool) {
	if len(lines) < 2 {
		return Subtitle{}, false
	}
	var sub Subtitle
	cue := 0
	if idx, err := strconv.Atoi(lines[0]); err == nil {
		sub.Index = idx
		cue = 1
	}
	if cue >= len(lines) {
		return Subtitle{}, false
	}
	start, end, ok := strings.Cut(lines[cue], "-->")
	if !ok {
		return Subtitle{}, false
	}
	sub.StartTime = ParseTimestamp(strings.TrimSpace(start))
	// Cue settings may follow the end timestamp.
	endFields := strings.Fields(end)
	if len(endFields) == 0 {
		return Subtitle{}, false
	}
	sub.EndTime = ParseTimestamp(endFields[0])
	sub.Text = strings.Join(lines[cue+1:], " ")
	if sub.IsEmpty() {
		return Subtitle{}, false
	}
	return sub, true
}

// ParseSRTFile parses the SRT file at path.
func ParseSRTFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSRT(f)
}

// ParseSRTString parses SRT content held in a string.
func ParseSRTString(content string) (List, error) {
	return ParseSRT(strings.NewReader(content))
}
