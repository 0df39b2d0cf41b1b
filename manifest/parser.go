// Package manifest parses resource manifests into a resource registry.
//
// A manifest is UTF-8 text with one resource per line, fields separated by a
// single tab:
//
//	<kind> '\t' <symbol> '\t' <path> '\n'
//
// where <kind> is "text" or "binary" (case-sensitive; anything else is
// accepted with a warning and treated as "binary"). Every referenced file is
// checked for existence when its record completes.
package manifest

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/yashi/elfrc"
)

// Field capacity limits. Exceeding one is a fatal parse error.
const (
	maxKindLen     = 32
	maxSymbolLen   = 256
	maxFilenameLen = 4096
)

type state int

const (
	readingKind state = iota
	readingSymbol
	readingFilename
)

// Parser is an incremental manifest parser. It consumes the manifest as a
// sequence of byte chunks of arbitrary size and appends one validated
// resource to the registry per record. All state lives in the Parser value,
// so chunk boundaries may fall anywhere, including mid-field; feeding the
// same logical byte stream in different chunkings yields the same registry.
// Finish signals the end of input.
type Parser struct {
	reg      *elfrc.Registry
	state    state
	kind     []byte
	symbol   []byte
	filename []byte
	line     int
}

func NewParser(reg *elfrc.Registry) *Parser {
	return &Parser{
		reg:      reg,
		kind:     make([]byte, 0, maxKindLen),
		symbol:   make([]byte, 0, maxSymbolLen),
		filename: make([]byte, 0, maxFilenameLen),
		line:     1,
	}
}

// Parse consumes the next chunk of manifest bytes.
func (p *Parser) Parse(chunk []byte) error {
	for _, c := range chunk {
		switch p.state {
		case readingKind:
			switch {
			case c == '\t':
				p.state = readingSymbol
				p.symbol = p.symbol[:0]
			case c == '\n':
				return parseErrf(p.line, "expected tab and symbol name, got newline")
			case len(p.kind) < maxKindLen:
				p.kind = append(p.kind, c)
			default:
				return parseErrf(p.line, "resource kind %q is too long", string(p.kind))
			}

		case readingSymbol:
			switch {
			case c == '\t':
				p.state = readingFilename
				p.filename = p.filename[:0]
			case c == '\n':
				return parseErrf(p.line, "expected tab and file name, got newline")
			case len(p.symbol) < maxSymbolLen:
				p.symbol = append(p.symbol, c)
			default:
				return parseErrf(p.line, "symbol %q is too long", string(p.symbol))
			}

		case readingFilename:
			switch {
			case c == '\n':
				if err := p.finishRecord(); err != nil {
					return err
				}
			case len(p.filename) < maxFilenameLen:
				p.filename = append(p.filename, c)
			default:
				return parseErrf(p.line, "file name %q is too long", string(p.filename))
			}
		}
	}
	return nil
}

// Finish signals the end of input. A final record whose closing newline is
// missing is finalized as if one had been read. End of input anywhere else
// inside a started record is an error.
func (p *Parser) Finish() error {
	switch p.state {
	case readingKind:
		if len(p.kind) > 0 {
			return parseErrf(p.line, "unexpected end of manifest; expected symbol name")
		}
		return nil
	case readingSymbol:
		return parseErrf(p.line, "unexpected end of manifest; expected file name")
	default:
		return p.finishRecord()
	}
}

// finishRecord validates the completed record and registers the resource.
func (p *Parser) finishRecord() error {
	kind, ok := kindFromToken(string(p.kind))
	if !ok {
		elfrc.Logger().Warn("unknown resource kind, assuming binary",
			zap.String("kind", string(p.kind)),
			zap.Int("line", p.line))
	}

	path := string(p.filename)
	info, err := os.Stat(path)
	if err != nil {
		return &ParseError{Line: p.line, Msg: fmt.Sprintf("failed to access %s", path), Err: err}
	}
	if info.IsDir() {
		return parseErrf(p.line, "cannot compile directory %s into a resource", path)
	}

	p.reg.Add(kind, string(p.symbol), path, info.Size())

	p.state = readingKind
	p.kind = p.kind[:0]
	p.line++
	return nil
}

func kindFromToken(tok string) (elfrc.Kind, bool) {
	switch tok {
	case "text":
		return elfrc.Text, true
	case "binary":
		return elfrc.Binary, true
	}
	return elfrc.Binary, false
}

// Load reads a complete manifest from r and registers its resources.
func Load(r io.Reader, reg *elfrc.Registry) error {
	p := NewParser(reg)
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if perr := p.Parse(buf[:n]); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return p.Finish()
		}
		if err != nil {
			return fmt.Errorf("read resource manifest: %w", err)
		}
	}
}
