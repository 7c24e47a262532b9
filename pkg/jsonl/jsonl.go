// Package jsonl reads and writes line-delimited JSON.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// MaxLineSize bounds a single input line.
const MaxLineSize = 16 << 20

// LineError reports a line that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Line is one decoded input line. Err is a *LineError when the line was
// malformed; Value is then the zero value.
type Line[T any] struct {
	Number int
	Value  T
	Err    error
}

// Reader decodes one T per non-blank line.
type Reader[T any] struct {
	sc       *bufio.Scanner
	number   int
	repair   bool
	repaired int
}

// NewReader creates a reader. With repair set, lines that fail to decode
// are passed through jsonrepair once before being reported as malformed.
// Lines cut off before their end are never repaired.
func NewReader[T any](r io.Reader, repair bool) *Reader[T] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader[T]{sc: sc, repair: repair}
}

// Next returns the next line, or io.EOF. A malformed line is not an error
// of Next; it comes back with Line.Err set.
func (r *Reader[T]) Next() (Line[T], error) {
	for r.sc.Scan() {
		r.number++
		raw := bytes.TrimSpace(r.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := r.decode(raw, &v); err != nil {
			return Line[T]{Number: r.number, Err: &LineError{Line: r.number, Err: err}}, nil
		}
		return Line[T]{Number: r.number, Value: v}, nil
	}
	if err := r.sc.Err(); err != nil {
		return Line[T]{}, fmt.Errorf("failed to read line %d: %w", r.number+1, err)
	}
	return Line[T]{}, io.EOF
}

func (r *Reader[T]) decode(raw []byte, v *T) error {
	err := json.Unmarshal(raw, v)
	if err == nil || !r.repair || truncated(raw, err) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(raw))
	if rerr != nil {
		return err
	}
	var retry T
	if json.Unmarshal([]byte(fixed), &retry) != nil {
		return err
	}
	*v = retry
	r.repaired++
	return nil
}

// truncated reports whether err is a syntax error at the end of raw.
func truncated(raw []byte, err error) bool {
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return false
	}
	return syn.Offset >= int64(len(raw)) || strings.Contains(syn.Error(), "unexpected end of JSON input")
}

// Repaired returns how many lines decoded only after repair.
func (r *Reader[T]) Repaired() int { return r.repaired }

// ReadAll reads every line of r.
func ReadAll[T any](r io.Reader, repair bool) ([]Line[T], error) {
	rd := NewReader[T](r, repair)
	var lines []Line[T]
	for {
		l, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, l)
	}
}

// Writer encodes one value per line.
type Writer struct {
	bw *bufio.Writer
	n  int
}

// NewWriter creates a buffered writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write encodes v on its own line. v is marshaled before anything is
// written, so a failed value leaves no partial line behind.
func (w *Writer) Write(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := w.bw.Write(buf.Bytes()); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.n }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }
