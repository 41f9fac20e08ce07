package starfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrSyntax marks malformed STAR input.
	ErrSyntax = errors.New("star syntax error")
	// ErrMissingColumn is returned when a requested column is absent.
	ErrMissingColumn = errors.New("star column missing")
)

// Block is one data_ block. A block holds either a loop table (Columns and
// Rows) or a set of single key/value pairs, or both.
type Block struct {
	Name    string
	Columns []string
	Rows    [][]string
	Pairs   map[string]string
}

// File is a parsed STAR document in source order.
type File struct {
	Blocks []*Block
}

// ReadFile opens and parses path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	parsed, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

type parseState int

const (
	stateTop parseState = iota
	stateLoopHeader
	stateLoopRows
)

// Parse reads a STAR document.
func Parse(r io.Reader) (*File, error) {
	file := &File{}
	var current *Block
	state := stateTop

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "data_"):
			current = &Block{Name: strings.TrimPrefix(line, "data_"), Pairs: map[string]string{}}
			file.Blocks = append(file.Blocks, current)
			state = stateTop
			continue
		case line == "loop_":
			if current == nil {
				return nil, fmt.Errorf("%w: line %d: loop_ outside data block", ErrSyntax, lineNo)
			}
			if len(current.Columns) > 0 {
				return nil, fmt.Errorf("%w: line %d: second loop_ in block %q", ErrSyntax, lineNo, current.Name)
			}
			state = stateLoopHeader
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("%w: line %d: content outside data block", ErrSyntax, lineNo)
		}

		if strings.HasPrefix(line, "_") {
			fields, err := splitFields(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, lineNo, err)
			}
			name := strings.TrimPrefix(fields[0], "_")
			if state == stateLoopHeader {
				// Trailing "#N" column indices are informational.
				current.Columns = append(current.Columns, name)
				continue
			}
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: line %d: key %q has no value", ErrSyntax, lineNo, name)
			}
			current.Pairs[name] = fields[1]
			state = stateTop
			continue
		}

		if state != stateLoopHeader && state != stateLoopRows {
			return nil, fmt.Errorf("%w: line %d: unexpected value outside loop", ErrSyntax, lineNo)
		}
		if len(current.Columns) == 0 {
			return nil, fmt.Errorf("%w: line %d: loop row before column headers", ErrSyntax, lineNo)
		}
		fields, err := splitFields(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, lineNo, err)
		}
		if len(fields) != len(current.Columns) {
			return nil, fmt.Errorf("%w: line %d: %d values for %d columns", ErrSyntax, lineNo, len(fields), len(current.Columns))
		}
		current.Rows = append(current.Rows, fields)
		state = stateLoopRows
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return file, nil
}

// splitFields splits on whitespace, honouring single and double quotes and
// stopping at an unquoted '#'.
func splitFields(line string) ([]string, error) {
	var fields []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '#':
			return fields, nil
		case c == '\'' || c == '"':
			end := strings.IndexByte(line[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote")
			}
			fields = append(fields, line[i+1:i+1+end])
			i += end + 2
		default:
			start := i
			for i < len(line) && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			fields = append(fields, line[start:i])
		}
	}
	return fields, nil
}

// Block returns the first block named name.
func (f *File) Block(name string) (*Block, bool) {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// FindLoop returns the first loop block carrying every named column.
func (f *File) FindLoop(columns ...string) (*Block, error) {
	for _, b := range f.Blocks {
		if b.hasColumns(columns) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no loop carries %s", ErrMissingColumn, strings.Join(columns, ", "))
}

func (b *Block) hasColumns(columns []string) bool {
	for _, name := range columns {
		if _, ok := b.Column(name); !ok {
			return false
		}
	}
	return len(b.Columns) > 0
}

// Column returns the zero-based index of name.
func (b *Block) Column(name string) (int, bool) {
	name = strings.TrimPrefix(name, "_")
	for i, col := range b.Columns {
		if col == name {
			return i, true
		}
	}
	return -1, false
}

// Len reports the number of loop rows.
func (b *Block) Len() int { return len(b.Rows) }

// Floats converts one column to float64 values in row order.
func (b *Block) Floats(name string) ([]float64, error) {
	idx, ok := b.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s in block %q", ErrMissingColumn, name, b.Name)
	}
	values := make([]float64, 0, len(b.Rows))
	for row, fields := range b.Rows {
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d column %s: %v", ErrSyntax, row+1, name, err)
		}
		values = append(values, v)
	}
	return values, nil
}
