// Package logreader reads the capture log back into invocation records.
//
// The log is appended to by many short-lived processes. A build that is
// aborted can leave a final partial line behind, and hostile or unrelated
// writers can corrupt individual entries; neither may poison the rest of the
// capture. Undecodable lines are therefore skipped and reported as issues
// alongside the successfully decoded invocations.
package logreader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"buildlogger/internal/record"
)

// maxEntryLen bounds a single log line. A full marshalled argument vector
// can be large, but anything past this is a corrupt entry, not a capture.
const maxEntryLen = 4 * 1024 * 1024

// Result holds the decoded invocations plus issues encountered while
// reading.
type Result struct {
	Invocations []*record.Invocation
	Issues      []string
}

// ReadFile decodes every complete entry in the capture log at path.
// A missing file yields an empty result: a build that never exec'd anything
// interesting is not an error.
func ReadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("opening capture log: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes entries from r, one JSON object per line. Lines longer than
// maxEntryLen are reported as issues and skipped without buffering them.
func Read(r io.Reader) (*Result, error) {
	result := &Result{}

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		lineNo++
		line, tooLong, err := readLine(br)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading capture log: %w", err)
		}

		switch {
		case tooLong:
			result.Issues = append(result.Issues, fmt.Sprintf("line %d: entry exceeds %d bytes", lineNo, maxEntryLen))
		default:
			text := strings.TrimSpace(string(line))
			if text != "" {
				decodeEntry(result, lineNo, text)
			}
		}

		if err == io.EOF {
			return result, nil
		}
	}
}

func decodeEntry(result *Result, lineNo int, text string) {
	var inv record.Invocation
	if err := json.Unmarshal([]byte(text), &inv); err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("line %d: undecodable entry: %v", lineNo, err))
		return
	}
	if len(inv.Args) == 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("line %d: entry has no argument vector", lineNo))
		return
	}
	result.Invocations = append(result.Invocations, &inv)
}

// readLine returns the next line including any trailing newline. A line
// longer than maxEntryLen is consumed to its end but not accumulated;
// tooLong is set instead of returning it.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		frag, err := br.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > maxEntryLen {
			if err == bufio.ErrBufferFull {
				err = drainLine(br)
			}
			return nil, true, err
		}
		if err != bufio.ErrBufferFull {
			return line, false, err
		}
	}
}

// drainLine discards input up to and including the next newline.
func drainLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if err != bufio.ErrBufferFull {
			return err
		}
	}
}
