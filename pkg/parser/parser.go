// Package parser 解析上游响应体，自动识别 JSON 与 JSONP。
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/httpx"
)

// Shape 期望的顶层结构
type Shape int

const (
	ShapeAny Shape = iota
	ShapeObject
	ShapeArray
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	default:
		return "any"
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Payload 解析结果，要么完整解码，要么返回错误
type Payload struct {
	Mode     Mode
	Callback string
	JSON     []byte
	Tree     interface{}
}

// Get 按 gjson 路径读取字段
func (p *Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.JSON, path)
}

// Object 返回顶层对象
func (p *Payload) Object() (map[string]interface{}, bool) {
	m, ok := p.Tree.(map[string]interface{})
	return m, ok
}

// Array 返回顶层数组
func (p *Payload) Array() ([]interface{}, bool) {
	a, ok := p.Tree.([]interface{})
	return a, ok
}

// Decode 把 JSON 解码到结构体
func (p *Payload) Decode(v interface{}) error {
	if err := json.Unmarshal(p.JSON, v); err != nil {
		return apperr.NewParseError("decode payload", err)
	}
	return nil
}

// Parse 解析原始响应，字符集取自 Content-Type
func Parse(raw *httpx.RawResponse, shape Shape) (*Payload, error) {
	if raw == nil {
		return nil, apperr.NewParseError("nil response", nil)
	}
	body, err := decodeCharset(raw.Body, raw.ContentType)
	if err != nil {
		return nil, err
	}
	return ParseBytes(body, shape)
}

// ParseBytes 解析 UTF-8 响应体
func ParseBytes(body []byte, shape Shape) (*Payload, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))

	mode, err := detect(body)
	if err != nil {
		return nil, apperr.NewParseError("unrecognized body", err).WithContext("excerpt", excerpt(body))
	}

	payload := &Payload{Mode: mode, JSON: body}
	if mode == ModeJSONP {
		callback, inner, err := unwrapJSONP(body)
		if err != nil {
			return nil, apperr.NewParseError("malformed jsonp", err).WithContext("excerpt", excerpt(body))
		}
		payload.Callback = callback
		payload.JSON = inner
	}

	tree, err := decodeStrict(payload.JSON)
	if err != nil {
		return nil, apperr.NewParseError("invalid json", err).WithContext("excerpt", excerpt(body))
	}

	if err := checkShape(tree, shape); err != nil {
		return nil, apperr.NewParseError("unexpected shape", err)
	}

	payload.Tree = tree
	return payload, nil
}

// Text 返回按字符集解码后的响应文本，用于非 JSON 格式
func Text(raw *httpx.RawResponse) (string, error) {
	if raw == nil {
		return "", apperr.NewParseError("nil response", nil)
	}
	body, err := decodeCharset(raw.Body, raw.ContentType)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(body, utf8BOM)), nil
}

// decodeStrict 数字保留为 json.Number，拒绝尾随数据
func decodeStrict(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, errors.New("empty json")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after json value")
	}
	return tree, nil
}

func checkShape(tree interface{}, shape Shape) error {
	switch shape {
	case ShapeObject:
		if _, ok := tree.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", tree)
		}
	case ShapeArray:
		if _, ok := tree.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %T", tree)
		}
	}
	return nil
}

// decodeCharset 按 Content-Type 中的 charset 转为 UTF-8
func decodeCharset(body []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, apperr.NewParseError("unsupported charset "+charset, err)
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return nil, apperr.NewParseError("charset decode failed", err)
	}
	return out, nil
}

func excerpt(b []byte) string {
	const n = 120
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
