package parser

import (
	"bytes"
	"errors"
	"fmt"
)

// Mode 响应体的编码方式
type Mode int

const (
	ModeJSON Mode = iota
	ModeJSONP
)

func (m Mode) String() string {
	if m == ModeJSONP {
		return "jsonp"
	}
	return "json"
}

var jsonLiterals = [][]byte{[]byte("true"), []byte("false"), []byte("null")}

// detect 按结构判断响应体是 JSON 还是 JSONP，不参考 Content-Type
func detect(body []byte) (Mode, error) {
	if len(body) == 0 {
		return 0, errors.New("empty body")
	}

	switch c := body[0]; {
	case c == '{' || c == '[' || c == '"' || c == '-' || (c >= '0' && c <= '9'):
		return ModeJSON, nil
	case c == '/' || isIdentStart(c):
		for _, lit := range jsonLiterals {
			if bytes.Equal(body, lit) {
				return ModeJSON, nil
			}
		}
		return ModeJSONP, nil
	}
	return 0, fmt.Errorf("unexpected leading byte %q", body[0])
}

// unwrapJSONP 拆出 callback(...) 中的 JSON
//
// 接受形如 [/*注释*/] ident[.ident]* [=] ( ... ) [;] 的响应体。
// 括号配对通过逐字节扫描完成，JSON 字符串字面量内部的括号不计入深度。
func unwrapJSONP(body []byte) (callback string, inner []byte, err error) {
	i := skipSpaceAndComments(body, 0)

	// var name = (...) 形式
	if hasWord(body, i, "var") {
		i = skipSpaceAndComments(body, i+3)
	}

	start := i
	for i < len(body) && (isIdentPart(body[i]) || body[i] == '.') {
		i++
	}
	if i == start || !isIdentStart(body[start]) {
		return "", nil, errors.New("missing jsonp callback name")
	}
	callback = string(body[start:i])

	i = skipSpaceAndComments(body, i)
	if i < len(body) && body[i] == '=' {
		i = skipSpaceAndComments(body, i+1)
	}
	if i >= len(body) || body[i] != '(' {
		return "", nil, errors.New("missing opening parenthesis")
	}

	open := i
	depth := 0
	inString := false
	escaped := false
	closeAt := -1

scan:
	for ; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				closeAt = i
				break scan
			}
		}
	}

	if closeAt < 0 {
		if inString {
			return "", nil, errors.New("unterminated string inside jsonp")
		}
		return "", nil, errors.New("unbalanced parentheses")
	}

	rest := skipSpaceAndComments(body, closeAt+1)
	if rest < len(body) && body[rest] == ';' {
		rest = skipSpaceAndComments(body, rest+1)
	}
	if rest != len(body) {
		return "", nil, fmt.Errorf("trailing data after jsonp at offset %d", rest)
	}

	return callback, bytes.TrimSpace(body[open+1 : closeAt]), nil
}

func skipSpaceAndComments(b []byte, i int) int {
	for i < len(b) {
		switch {
		case isSpace(b[i]):
			i++
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '*':
			end := bytes.Index(b[i+2:], []byte("*/"))
			if end < 0 {
				return len(b)
			}
			i += end + 4
		case b[i] == '/' && i+1 < len(b) && b[i+1] == '/':
			for i < len(b) && b[i] != '\n' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func hasWord(b []byte, i int, word string) bool {
	end := i + len(word)
	return end < len(b) && string(b[i:end]) == word && isSpace(b[end])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
