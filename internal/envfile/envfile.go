// internal/envfile/envfile.go
//
// `.env` file tokenizer.
//
// Context
// -------
// Each non-blank, non-comment line is `KEY=VALUE`, optionally prefixed by
// `export`.  Values may be single- or double-quoted; double quotes honour
// `\n`, `\t`, `\"`, and `\\` escapes and may span lines.  Unquoted values
// end at ` #`.  Nothing is expanded: `$HOME` stays `$HOME`.
//
// Every entry remembers the 1-based line and column of its value so the
// resolver can point at it.  Parsed files are cached by absolute path until
// `Clear()`.
//
// Notes
// -----
//   - A later duplicate key overwrites an earlier one within a file.
//   - A malformed line is a *ParseError; the file is rejected whole.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Entry is one parsed assignment.
type Entry struct {
	Value  string
	Line   int
	Column int
}

// File is a parsed `.env` file.
type File struct {
	Path    string
	Entries map[string]Entry
	// Keys lists entry names in first-seen order.
	Keys []string
}

// ParseError reports a malformed line.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
}

/*──────────────────────────── cache ───────────────────────────────────────*/

var (
	mu    sync.Mutex
	files = map[string]*File{}
)

// Load parses path, returning a cached result when one exists.
func Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("envfile: %w", err)
	}
	mu.Lock()
	f, ok := files[abs]
	mu.Unlock()
	if ok {
		return f, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("envfile: read %s: %w", path, err)
	}
	f, err = Parse(path, data)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	files[abs] = f
	mu.Unlock()
	return f, nil
}

// Clear drops every cached file.
func Clear() {
	mu.Lock()
	clear(files)
	mu.Unlock()
}

/*──────────────────────────── parser ──────────────────────────────────────*/

type scanner struct {
	path string
	src  string
	pos  int
	line int
	col  int
}

// Parse tokenizes data.  path is only used in errors.
func Parse(path string, data []byte) (*File, error) {
	s := &scanner{path: path, src: strings.ReplaceAll(string(data), "\r\n", "\n"), line: 1, col: 1}
	f := &File{Path: path, Entries: map[string]Entry{}}
	for !s.eof() {
		key, entry, ok, err := s.assignment()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, seen := f.Entries[key]; !seen {
			f.Keys = append(f.Keys, key)
		}
		f.Entries[key] = entry
	}
	return f, nil
}

// assignment consumes one logical line.  ok is false for blank and comment
// lines.
func (s *scanner) assignment() (key string, e Entry, ok bool, err error) {
	s.skipSpace()
	if s.eof() {
		return "", Entry{}, false, nil
	}
	if c := s.peek(); c == '\n' || c == '#' {
		s.skipLine()
		return "", Entry{}, false, nil
	}

	if strings.HasPrefix(s.src[s.pos:], "export ") || strings.HasPrefix(s.src[s.pos:], "export\t") {
		s.advance(len("export"))
		s.skipSpace()
	}

	keyLine, keyCol := s.line, s.col
	start := s.pos
	for !s.eof() && isKeyByte(s.peek()) {
		s.advance(1)
	}
	key = s.src[start:s.pos]
	if key == "" {
		return "", Entry{}, false, s.errorf(keyLine, keyCol, "expected a variable name")
	}

	s.skipSpace()
	if s.eof() || (s.peek() != '=' && s.peek() != ':') {
		return "", Entry{}, false, s.errorf(s.line, s.col, "expected '=' after %s", key)
	}
	s.advance(1)
	s.skipSpace()

	e = Entry{Line: s.line, Column: s.col}
	switch {
	case s.eof() || s.peek() == '\n':
	case s.peek() == '"':
		e.Value, err = s.doubleQuoted()
	case s.peek() == '\'':
		e.Value, err = s.singleQuoted()
	default:
		e.Value = s.bare()
	}
	if err != nil {
		return "", Entry{}, false, err
	}
	s.skipLine()
	return key, e, true, nil
}

func (s *scanner) doubleQuoted() (string, error) {
	line, col := s.line, s.col
	s.advance(1)
	var b strings.Builder
	for !s.eof() {
		c := s.peek()
		switch c {
		case '"':
			s.advance(1)
			return b.String(), s.trailing()
		case '\\':
			if s.pos+1 >= len(s.src) {
				s.advance(1)
				continue
			}
			switch n := s.src[s.pos+1]; n {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(n)
			default:
				b.WriteByte('\\')
				b.WriteByte(n)
			}
			s.advance(2)
		default:
			b.WriteByte(c)
			s.advance(1)
		}
	}
	return "", s.errorf(line, col, "unterminated double-quoted value")
}

func (s *scanner) singleQuoted() (string, error) {
	line, col := s.line, s.col
	s.advance(1)
	start := s.pos
	for !s.eof() {
		if s.peek() == '\'' {
			v := s.src[start:s.pos]
			s.advance(1)
			return v, s.trailing()
		}
		s.advance(1)
	}
	return "", s.errorf(line, col, "unterminated single-quoted value")
}

// trailing allows whitespace and a comment after a closing quote.
func (s *scanner) trailing() error {
	s.skipSpace()
	if s.eof() || s.peek() == '\n' || s.peek() == '#' {
		return nil
	}
	return s.errorf(s.line, s.col, "unexpected character %q after quoted value", s.peek())
}

func (s *scanner) bare() string {
	start := s.pos
	for !s.eof() && s.peek() != '\n' {
		if s.peek() == '#' && s.pos > start && isSpace(s.src[s.pos-1]) {
			break
		}
		s.advance(1)
	}
	return strings.TrimRight(s.src[start:s.pos], " \t")
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func (s *scanner) eof() bool  { return s.pos >= len(s.src) }
func (s *scanner) peek() byte { return s.src[s.pos] }

func (s *scanner) advance(n int) {
	for i := 0; i < n && !s.eof(); i++ {
		if s.src[s.pos] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
		s.pos++
	}
}

func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.peek()) {
		s.advance(1)
	}
}

func (s *scanner) skipLine() {
	for !s.eof() && s.peek() != '\n' {
		s.advance(1)
	}
	s.advance(1)
}

func (s *scanner) errorf(line, col int, format string, args ...any) error {
	return &ParseError{Path: s.path, Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isKeyByte(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// IsNotExist reports whether err means the file was missing.
func IsNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }
