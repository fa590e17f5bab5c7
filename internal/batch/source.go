package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// metadataKey is the reserved input key carried through to the output
// record and removed from the payload before dispatch.
const metadataKey = "metadata"

// maxLineBytes bounds a single input line. Chat payloads with long
// prompts routinely exceed bufio's 64KB default.
const maxLineBytes = 8 * 1024 * 1024

// MalformedInputError is a fatal condition: an input line that cannot be
// parsed aborts the run at that line. There is no silent skipping.
type MalformedInputError struct {
	Line int
	Err  error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Source lazily produces one job payload per line of the input stream,
// in file order. It is finite, forward-only and not restartable;
// exhaustion is signaled once via Next's ok result.
type Source struct {
	scanner   *bufio.Scanner
	line      int
	exhausted bool
}

// NewSource wraps a JSONL stream. The caller retains ownership of the
// underlying reader and closes it after the run.
func NewSource(r io.Reader) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Source{scanner: scanner}
}

// Next returns the next payload and its extracted metadata value.
// ok is false once the stream is exhausted. A line that does not parse
// as a JSON object returns a MalformedInputError.
func (s *Source) Next() (payload map[string]any, metadata any, ok bool, err error) {
	if s.exhausted {
		return nil, nil, false, nil
	}

	if !s.scanner.Scan() {
		s.exhausted = true
		if scanErr := s.scanner.Err(); scanErr != nil {
			return nil, nil, false, &MalformedInputError{Line: s.line + 1, Err: scanErr}
		}
		return nil, nil, false, nil
	}
	s.line++

	if err := json.Unmarshal(s.scanner.Bytes(), &payload); err != nil {
		s.exhausted = true
		return nil, nil, false, &MalformedInputError{Line: s.line, Err: err}
	}

	if meta, present := payload[metadataKey]; present {
		metadata = meta
		delete(payload, metadataKey)
	}

	return payload, metadata, true, nil
}

// Exhausted reports whether the stream has been fully consumed.
func (s *Source) Exhausted() bool {
	return s.exhausted
}

// Line returns the number of lines read so far.
func (s *Source) Line() int {
	return s.line
}
