package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const maxNesting = 256

// keyword is a bare token such as obj, endobj, stream, xref, trailer, n or f.
type keyword string

type lexer struct {
	data  []byte
	pos   int
	depth int
}

func newLexer(data []byte, pos int) *lexer {
	return &lexer{data: data, pos: pos}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isWhitespace(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) eof() bool { return l.pos >= len(l.data) }

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.data[l.pos]
}

func (l *lexer) skipSpace() {
	for !l.eof() {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for !l.eof() && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// next parses one object or bare keyword at the current position.
func (l *lexer) next() (Object, error) {
	l.skipSpace()
	if l.eof() {
		return nil, errors.New("unexpected end of data")
	}
	c := l.data[l.pos]
	switch {
	case c == '/':
		return l.name(), nil
	case c == '(':
		return l.literal()
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			return l.dict()
		}
		return l.hex()
	case c == '[':
		return l.array()
	case isDigit(c) || c == '+' || c == '-' || c == '.':
		return l.numberOrRef(), nil
	case c == ']' || c == ')' || c == '>' || c == '{' || c == '}':
		l.pos++
		if c == '>' && l.peek() == '>' {
			l.pos++
			return keyword(">>"), nil
		}
		return keyword(string(c)), nil
	}
	kw := l.word()
	switch kw {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	case "null":
		return Null{}, nil
	}
	return keyword(kw), nil
}

func (l *lexer) word() string {
	start := l.pos
	for !l.eof() && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) name() Name {
	l.pos++ // '/'
	var buf bytes.Buffer
	for !l.eof() && !isDelimiter(l.data[l.pos]) {
		c := l.data[l.pos]
		if c == '#' && l.pos+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8); err == nil {
				buf.WriteByte(byte(v))
				l.pos += 3
				continue
			}
		}
		buf.WriteByte(c)
		l.pos++
	}
	return Name(buf.String())
}

func (l *lexer) literal() (Object, error) {
	l.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for !l.eof() {
		c := l.data[l.pos]
		switch c {
		case '\\':
			l.pos++
			if l.eof() {
				return String(buf.Bytes()), nil
			}
			esc := l.data[l.pos]
			switch {
			case esc == '\r':
				l.pos++
				if l.peek() == '\n' {
					l.pos++
				}
				continue
			case esc == '\n':
				l.pos++
				continue
			case esc >= '0' && esc <= '7':
				val := 0
				for k := 0; k < 3 && !l.eof() && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
					val = val<<3 + int(l.data[l.pos]-'0')
					l.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(unescape(esc))
			l.pos++
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				l.pos++
				return String(buf.Bytes()), nil
			}
		}
		buf.WriteByte(c)
		l.pos++
	}
	return nil, errors.New("unterminated literal string")
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}

func (l *lexer) hex() (Object, error) {
	l.pos++ // '<'
	var digits []byte
	for !l.eof() {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				out[i] = fromHex(digits[2*i])<<4 | fromHex(digits[2*i+1])
			}
			return HexString(out), nil
		}
		if isWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	return nil, errors.New("unterminated hex string")
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func (l *lexer) array() (Object, error) {
	l.pos++ // '['
	if l.depth++; l.depth > maxNesting {
		return nil, errors.New("nesting too deep")
	}
	defer func() { l.depth-- }()
	arr := Array{}
	for {
		obj, err := l.next()
		if err != nil {
			return nil, err
		}
		if kw, ok := obj.(keyword); ok {
			if kw == "]" {
				return arr, nil
			}
			return nil, fmt.Errorf("unexpected %q in array", string(kw))
		}
		arr = append(arr, obj)
	}
}

func (l *lexer) dict() (Object, error) {
	l.pos += 2 // '<<'
	if l.depth++; l.depth > maxNesting {
		return nil, errors.New("nesting too deep")
	}
	defer func() { l.depth-- }()
	d := Dict{}
	for {
		key, err := l.next()
		if err != nil {
			return nil, err
		}
		if kw, ok := key.(keyword); ok && kw == ">>" {
			return d, nil
		}
		name, ok := key.(Name)
		if !ok {
			return nil, fmt.Errorf("dictionary key is %T, not a name", key)
		}
		val, err := l.next()
		if err != nil {
			return nil, err
		}
		if kw, ok := val.(keyword); ok {
			if kw == ">>" {
				d[name] = Null{}
				return d, nil
			}
			return nil, fmt.Errorf("unexpected %q as value of /%s", string(kw), name)
		}
		d[name] = val
	}
}

func (l *lexer) number() string {
	start := l.pos
	for !l.eof() {
		c := l.data[l.pos]
		if isDigit(c) || c == '+' || c == '-' || c == '.' {
			l.pos++
			continue
		}
		break
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) numberOrRef() Object {
	tok := l.number()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(tok, 64)
		if ferr != nil {
			return Integer(0)
		}
		return Real(f)
	}
	if n < 0 || tok[0] == '+' {
		return Integer(n)
	}
	save := l.pos
	l.skipSpace()
	if !l.eof() && isDigit(l.data[l.pos]) {
		genStart := l.pos
		for !l.eof() && isDigit(l.data[l.pos]) {
			l.pos++
		}
		gen, gerr := strconv.Atoi(string(l.data[genStart:l.pos]))
		l.skipSpace()
		if gerr == nil && l.peek() == 'R' && (l.pos+1 >= len(l.data) || isDelimiter(l.data[l.pos+1])) {
			l.pos++
			return Ref{Num: int(n), Gen: gen}
		}
	}
	l.pos = save
	return Integer(n)
}

// expectInt reads the next token as an integer.
func (l *lexer) expectInt() (int, error) {
	obj, err := l.next()
	if err != nil {
		return 0, err
	}
	n, ok := obj.(Integer)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T", obj)
	}
	return int(n), nil
}

// expectKeyword reads the next token and checks it is kw.
func (l *lexer) expectKeyword(kw string) error {
	obj, err := l.next()
	if err != nil {
		return err
	}
	if k, ok := obj.(keyword); !ok || string(k) != kw {
		return fmt.Errorf("expected %q, got %v", kw, obj)
	}
	return nil
}
