package indi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxElementSize bounds the unparsed input a Parser will hold while
// waiting for a top-level element to complete. BLOB vectors are the only
// elements that get anywhere near it.
const DefaultMaxElementSize = 16 << 20

// Parser reassembles complete top-level elements from a chunked INDI stream.
//
// Input may be split at any byte. Feed keeps the unfinished tail and returns
// each top-level element once its matching end tag has arrived. Returned
// elements are independent copies, so decoding them cannot disturb the
// parser's state.
type Parser struct {
	buf     []byte
	maxSize int
}

// NewParser creates a Parser. A maxSize of zero or less selects DefaultMaxElementSize.
func NewParser(maxSize int) *Parser {
	if maxSize <= 0 {
		maxSize = DefaultMaxElementSize
	}
	return &Parser{maxSize: maxSize}
}

// Feed appends data to the stream and returns every top-level element it completes, in order.
//
// Returns:
//   - [][]byte: Raw bytes of each complete element (possibly none)
//   - error: ErrMalformedStream or ErrElementTooLarge; the parser is reset
//     and the stream should be abandoned
func (p *Parser) Feed(data []byte) ([][]byte, error) {
	p.buf = append(p.buf, data...)

	// An element can only complete on a '>'; base64 BLOB lines never contain one.
	if bytes.IndexByte(data, '>') < 0 {
		if len(p.buf) > p.maxSize {
			p.Reset()
			return nil, ErrElementTooLarge
		}
		return nil, nil
	}

	elements, consumed, err := scanElements(p.buf)
	if consumed > 0 {
		p.buf = append(p.buf[:0], p.buf[consumed:]...)
	}
	if err != nil {
		p.Reset()
		return elements, err
	}
	if len(p.buf) > p.maxSize {
		p.Reset()
		return elements, ErrElementTooLarge
	}
	return elements, nil
}

// Buffered returns the number of bytes held for an unfinished element.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset discards any buffered input.
func (p *Parser) Reset() {
	p.buf = nil
}

// scanElements tokenises buf from the start and cuts out each complete
// top-level element. consumed is the offset just past the last one.
func scanElements(buf []byte) (elements [][]byte, consumed int, err error) {
	dec := newDecoder(buf)

	depth := 0
	var start int64
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if isIncomplete(err) {
				return elements, consumed, nil
			}
			return elements, consumed, fmt.Errorf("%w: %w", ErrMalformedStream, err)
		}

		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				start = offset
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				end := int(dec.InputOffset())
				elements = append(elements, bytes.Clone(buf[start:end]))
				consumed = end
			}
		}
	}
}

// newDecoder returns a strict decoder that understands the HTML entities
// some drivers put into message text.
func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	return dec
}

// isIncomplete reports whether err only means the input ran out mid-element.
func isIncomplete(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var syntaxErr *xml.SyntaxError
	return errors.As(err, &syntaxErr) && strings.HasPrefix(syntaxErr.Msg, "unexpected EOF")
}
