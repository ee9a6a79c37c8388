package loader

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	gotoml "github.com/pelletier/go-toml/v2"
)

// ParseError reports malformed file content.  Line and Column are zero when
// the parser did not say where it failed.
type ParseError struct {
	Path    string
	Format  string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

var yamlLine = regexp.MustCompile(`line (\d+)`)

func newParseError(path, ext string, data []byte, err error) *ParseError {
	pe := &ParseError{Path: path, Format: ext[1:], Message: err.Error(), Err: err}

	var (
		tomlErr   *gotoml.DecodeError
		syntaxErr *stdjson.SyntaxError
		typeErr   *stdjson.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tomlErr):
		pe.Line, pe.Column = tomlErr.Position()
	case errors.As(err, &syntaxErr):
		pe.Line, pe.Column = position(data, syntaxErr.Offset)
	case errors.As(err, &typeErr):
		pe.Line, pe.Column = position(data, typeErr.Offset)
	default:
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			pe.Line, _ = strconv.Atoi(m[1])
		}
	}
	return pe
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset < 0 {
		return 0, 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line = bytes.Count(head, []byte{'\n'}) + 1
	col = int(offset) - bytes.LastIndexByte(head, '\n')
	return line, col
}
