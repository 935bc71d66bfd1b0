// Package chunkparser implements an incremental JSON parser that accepts a
// document as arbitrary text fragments and produces structural events in
// document order. Tokens that straddle fragment boundaries are carried over;
// only the unfinished token is ever buffered.
package chunkparser

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrMalformedStream is returned for syntax errors and incomplete documents.
var ErrMalformedStream = errors.New("malformed stream")

// ErrFinished is returned when feeding a parser after Finish.
var ErrFinished = errors.New("parser already finished")

// Default limits.
const (
	DefaultMaxDepth      = 512
	DefaultMaxTokenBytes = 64 << 20 // 64 MiB.
)

// tokenRetainLimit is the buffer capacity kept between tokens; larger buffers
// are released once their token completes.
const tokenRetainLimit = 1 << 20

const (
	literalTrue  = "true"
	literalFalse = "false"
	literalNull  = "null"
)

// hexDigits is the length of a \u escape payload.
const hexDigits = 4

// SyntaxError reports where in the stream parsing failed.
type SyntaxError struct {
	Offset int64
	Msg    string
}

// Error implements error.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrMalformedStream, e.Offset, e.Msg)
}

// Unwrap lets errors.Is match ErrMalformedStream.
func (e *SyntaxError) Unwrap() error {
	return ErrMalformedStream
}

type lexState int

const (
	lexIdle lexState = iota
	lexString
	lexNumber
	lexLiteral
)

type escState int

const (
	escNone escState = iota
	escBackslash
	escUnicode
)

type frameState int

const (
	rootValue frameState = iota
	rootDone
	objKeyOrEnd
	objKey
	objColon
	objValue
	objCommaOrEnd
	arrValueOrEnd
	arrValue
	arrCommaOrEnd
)

type frame struct {
	state    frameState
	object   bool
	key      string
	bound    string
	hasBound bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth limits container nesting.
func WithMaxDepth(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

// WithMaxTokenBytes limits the size of a single string, number or literal.
func WithMaxTokenBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxToken = n
		}
	}
}

// Parser is a push-fed, pull-drained JSON event parser. It is not safe for
// concurrent use; fragments of one document must be fed in order.
type Parser struct {
	stack []frame
	queue []Event
	head  int

	lex    lexState
	tok    []byte
	esc    escState
	hexN   int
	hexVal rune
	high   rune

	offset   int64
	err      error
	finished bool

	maxDepth int
	maxToken int
}

// New creates a parser expecting one JSON value.
func New(opts ...Option) *Parser {
	p := &Parser{
		stack:    []frame{{state: rootValue}},
		maxDepth: DefaultMaxDepth,
		maxToken: DefaultMaxTokenBytes,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Feed consumes the next fragment. Events become available through Events.
// An empty fragment is a no-op. Once Feed fails, the parser stays failed.
func (p *Parser) Feed(fragment string) error {
	if p.err != nil {
		return p.err
	}

	if p.finished {
		return ErrFinished
	}

	i := 0
	for i < len(fragment) {
		var err error

		switch p.lex {
		case lexString:
			i, err = p.lexStringBytes(fragment, i)
		case lexNumber:
			i, err = p.lexRun(fragment, i, isNumberByte, p.completeNumber)
		case lexLiteral:
			i, err = p.lexRun(fragment, i, isLiteralByte, p.completeLiteral)
		default:
			err = p.dispatch(fragment[i])
			i++
			p.offset++
		}

		if err != nil {
			p.err = err

			return err
		}
	}

	return nil
}

// Finish validates that the document is complete. It must be called after the
// last fragment.
func (p *Parser) Finish() error {
	if p.err != nil {
		return p.err
	}

	if p.finished {
		return nil
	}

	var err error

	switch p.lex {
	case lexNumber:
		err = p.completeNumber()
	case lexLiteral:
		err = p.completeLiteral()
	case lexString:
		err = p.syntaxErr("unterminated string")
	case lexIdle:
	}

	if err == nil && (len(p.stack) != 1 || p.stack[0].state != rootDone) {
		err = p.syntaxErr("unexpected end of document")
	}

	if err != nil {
		p.err = err

		return err
	}

	p.finished = true

	return nil
}

// Events drains queued events in document order. Stopping the iteration early
// leaves the remaining events queued.
func (p *Parser) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for p.head < len(p.queue) {
			ev := p.queue[p.head]
			p.head++

			if !yield(ev) {
				return
			}
		}

		clear(p.queue)
		p.queue = p.queue[:0]
		p.head = 0
	}
}

// Pending returns the number of queued events.
func (p *Parser) Pending() int {
	return len(p.queue) - p.head
}

// Offset returns the number of bytes consumed so far.
func (p *Parser) Offset() int64 {
	return p.offset
}

// Buffered returns the number of bytes held for the unfinished token.
func (p *Parser) Buffered() int {
	return len(p.tok)
}

func (p *Parser) dispatch(c byte) error {
	switch c {
	case ' ', '\t', '\n', '\r':
		return nil
	case '{':
		return p.open(true)
	case '[':
		return p.open(false)
	case '}':
		return p.close(true)
	case ']':
		return p.close(false)
	case ':':
		top := p.top()
		if top.state != objColon {
			return p.syntaxErr("unexpected ':'")
		}

		top.state = objValue

		return nil
	case ',':
		top := p.top()

		switch top.state {
		case objCommaOrEnd:
			top.state = objKey
		case arrCommaOrEnd:
			top.state = arrValue
		default:
			return p.syntaxErr("unexpected ','")
		}

		return nil
	case '"':
		if !p.stringAllowed() {
			return p.syntaxErr("unexpected string")
		}

		p.lex = lexString
		p.esc = escNone

		return nil
	case 't', 'f', 'n':
		if !p.valueAllowed() {
			return p.syntaxErr("unexpected literal")
		}

		p.lex = lexLiteral
		p.tok = append(p.tok, c)

		return nil
	default:
		if c == '-' || isDigit(c) {
			if !p.valueAllowed() {
				return p.syntaxErr("unexpected number")
			}

			p.lex = lexNumber
			p.tok = append(p.tok, c)

			return nil
		}

		return p.syntaxErr(fmt.Sprintf("unexpected character %q", c))
	}
}

func (p *Parser) open(object bool) error {
	key, hasKey, err := p.acceptValue()
	if err != nil {
		return err
	}

	depth := len(p.stack) - 1
	if depth >= p.maxDepth {
		return p.syntaxErr(fmt.Sprintf("nesting deeper than %d", p.maxDepth))
	}

	kind, state := OpenArray, arrValueOrEnd
	if object {
		kind, state = OpenObject, objKeyOrEnd
	}

	p.emit(Event{Kind: kind, Key: key, HasKey: hasKey, Depth: depth})
	p.stack = append(p.stack, frame{state: state, object: object, bound: key, hasBound: hasKey})

	return nil
}

func (p *Parser) close(object bool) error {
	top := p.top()
	if len(p.stack) == 1 || top.object != object {
		return p.syntaxErr("unbalanced close")
	}

	switch top.state {
	case objKeyOrEnd, objCommaOrEnd, arrValueOrEnd, arrCommaOrEnd:
	default:
		return p.syntaxErr("unexpected close")
	}

	closed := *top
	p.stack = p.stack[:len(p.stack)-1]

	kind := CloseArray
	if object {
		kind = CloseObject
	}

	p.emit(Event{Kind: kind, Key: closed.bound, HasKey: closed.hasBound, Depth: len(p.stack) - 1})

	return nil
}

func (p *Parser) top() *frame {
	return &p.stack[len(p.stack)-1]
}

func (p *Parser) valueAllowed() bool {
	switch p.top().state {
	case rootValue, objValue, arrValueOrEnd, arrValue:
		return true
	default:
		return false
	}
}

func (p *Parser) stringAllowed() bool {
	state := p.top().state

	return state == objKeyOrEnd || state == objKey || p.valueAllowed()
}

// acceptValue moves the enclosing frame past a value and returns the member
// name the value is bound to.
func (p *Parser) acceptValue() (string, bool, error) {
	top := p.top()

	switch top.state {
	case rootValue:
		top.state = rootDone

		return "", false, nil
	case objValue:
		top.state = objCommaOrEnd

		return top.key, true, nil
	case arrValueOrEnd, arrValue:
		top.state = arrCommaOrEnd

		return "", false, nil
	default:
		return "", false, p.syntaxErr("unexpected value")
	}
}

func (p *Parser) emitScalar(kind ScalarKind, text string) error {
	key, hasKey, err := p.acceptValue()
	if err != nil {
		return err
	}

	p.emit(Event{Kind: Value, Key: key, HasKey: hasKey, Value: Scalar{Kind: kind, Text: text}, Depth: len(p.stack) - 1})

	return nil
}

func (p *Parser) emit(ev Event) {
	p.queue = append(p.queue, ev)
}

// lexStringBytes continues a string token from data[i:]. It returns when the
// string closes or the fragment is exhausted.
func (p *Parser) lexStringBytes(data string, i int) (int, error) {
	for i < len(data) {
		c := data[i]

		switch p.esc {
		case escBackslash:
			err := p.simpleEscape(c)
			if err != nil {
				return i, err
			}
		case escUnicode:
			err := p.unicodeDigit(c)
			if err != nil {
				return i, err
			}
		case escNone:
			j := i
			for j < len(data) && data[j] != '"' && data[j] != '\\' && data[j] >= 0x20 {
				j++
			}

			if j > i {
				err := p.appendRun(data[i:j])
				if err != nil {
					return i, err
				}

				p.offset += int64(j - i)
				i = j

				continue
			}

			switch c {
			case '"':
				p.offset++

				return i + 1, p.completeString()
			case '\\':
				p.esc = escBackslash
			default:
				return i, p.syntaxErr("control character in string")
			}
		}

		i++
		p.offset++
	}

	return i, nil
}

func (p *Parser) simpleEscape(c byte) error {
	var out byte

	switch c {
	case '"', '\\', '/':
		out = c
	case 'b':
		out = '\b'
	case 'f':
		out = '\f'
	case 'n':
		out = '\n'
	case 'r':
		out = '\r'
	case 't':
		out = '\t'
	case 'u':
		p.esc = escUnicode
		p.hexN = 0
		p.hexVal = 0

		return nil
	default:
		return p.syntaxErr(fmt.Sprintf("invalid escape %q", c))
	}

	p.esc = escNone

	return p.appendRun(string(out))
}

func (p *Parser) unicodeDigit(c byte) error {
	digit, ok := hexValue(c)
	if !ok {
		return p.syntaxErr(fmt.Sprintf("invalid hex digit %q", c))
	}

	p.hexVal = p.hexVal<<4 | digit
	p.hexN++

	if p.hexN < hexDigits {
		return nil
	}

	p.esc = escNone

	return p.appendEscapedRune(p.hexVal)
}

func (p *Parser) appendEscapedRune(r rune) error {
	if p.high != 0 {
		high := p.high
		p.high = 0

		if utf16.IsSurrogate(r) && r >= 0xDC00 {
			return p.appendRune(utf16.DecodeRune(high, r))
		}

		err := p.appendRune(utf8.RuneError)
		if err != nil {
			return err
		}
	}

	switch {
	case r >= 0xD800 && r < 0xDC00:
		p.high = r

		return nil
	case utf16.IsSurrogate(r):
		return p.appendRune(utf8.RuneError)
	default:
		return p.appendRune(r)
	}
}

func (p *Parser) appendRune(r rune) error {
	return p.appendRun(string(r))
}

func (p *Parser) appendRun(s string) error {
	if p.high != 0 {
		p.high = 0
		p.tok = utf8.AppendRune(p.tok, utf8.RuneError)
	}

	if len(p.tok)+len(s) > p.maxToken {
		return p.syntaxErr(fmt.Sprintf("token larger than %d bytes", p.maxToken))
	}

	p.tok = append(p.tok, s...)

	return nil
}

func (p *Parser) completeString() error {
	if p.high != 0 {
		p.high = 0
		p.tok = utf8.AppendRune(p.tok, utf8.RuneError)
	}

	text := p.takeToken()
	p.lex = lexIdle

	top := p.top()
	if top.state == objKeyOrEnd || top.state == objKey {
		top.key = text
		top.state = objColon
		p.emit(Event{Kind: Key, Key: text, HasKey: true, Depth: len(p.stack) - 1})

		return nil
	}

	return p.emitScalar(String, text)
}

// lexRun accumulates bytes accepted by accept; the first other byte completes
// the token and is left for dispatch.
func (p *Parser) lexRun(data string, i int, accept func(byte) bool, complete func() error) (int, error) {
	j := i
	for j < len(data) && accept(data[j]) {
		j++
	}

	if len(p.tok)+(j-i) > p.maxToken {
		return i, p.syntaxErr(fmt.Sprintf("token larger than %d bytes", p.maxToken))
	}

	p.tok = append(p.tok, data[i:j]...)
	p.offset += int64(j - i)

	if j == len(data) {
		return j, nil
	}

	return j, complete()
}

func (p *Parser) completeNumber() error {
	if !validNumber(p.tok) {
		return p.syntaxErr(fmt.Sprintf("invalid number %q", p.tok))
	}

	p.lex = lexIdle

	return p.emitScalar(Number, p.takeToken())
}

func (p *Parser) completeLiteral() error {
	text := p.takeToken()
	p.lex = lexIdle

	switch text {
	case literalTrue, literalFalse:
		return p.emitScalar(Bool, text)
	case literalNull:
		return p.emitScalar(Null, text)
	default:
		return p.syntaxErr(fmt.Sprintf("invalid literal %q", text))
	}
}

func (p *Parser) takeToken() string {
	text := string(p.tok)

	if cap(p.tok) > tokenRetainLimit {
		p.tok = nil
	} else {
		p.tok = p.tok[:0]
	}

	return text
}

func (p *Parser) syntaxErr(msg string) error {
	return &SyntaxError{Offset: p.offset, Msg: msg}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumberByte(c byte) bool {
	return isDigit(c) || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func isLiteralByte(c byte) bool {
	return c >= 'a' && c <= 'z'
}

func hexValue(c byte) (rune, bool) {
	switch {
	case c >= '0' && c <= '9':
		return rune(c - '0'), true
	case c >= 'a' && c <= 'f':
		return rune(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return rune(c-'A') + 10, true
	default:
		return 0, false
	}
}

// validNumber checks the JSON number grammar
// -?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?.
func validNumber(b []byte) bool {
	i := 0
	if i < len(b) && b[i] == '-' {
		i++
	}

	switch {
	case i >= len(b):
		return false
	case b[i] == '0':
		i++
	case isDigit(b[i]):
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	default:
		return false
	}

	if i < len(b) && b[i] == '.' {
		i++

		start := i
		for i < len(b) && isDigit(b[i]) {
			i++
		}

		if i == start {
			return false
		}
	}

	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		i++

		if i < len(b) && (b[i] == '+' || b[i] == '-') {
			i++
		}

		start := i
		for i < len(b) && isDigit(b[i]) {
			i++
		}

		if i == start {
			return false
		}
	}

	return i == len(b)
}
