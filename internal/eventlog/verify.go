package eventlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// maxLineBytes bounds a single entry when reading the log back.
const maxLineBytes = 4 << 20

// VerifyResult holds the outcome of a log well-formedness check.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Bytes     int64  `json:"bytes"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify checks that every line of the log is one complete JSON object with
// a timestamp. The first bad line is reported.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		e, err := ParseEntry(scanner.Bytes())
		if err != nil {
			return VerifyResult{Bytes: size, Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}
		if e.Timestamp() == "" {
			return VerifyResult{Bytes: size, Error: "entry has no timestamp", ErrorLine: lineNum}
		}
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Bytes: size, Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lineNum, Bytes: size}
}

// Tail returns the last n raw lines of the log. A missing log has no lines.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: read: %w", err)
	}
	return lines, nil
}
