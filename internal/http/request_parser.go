// Package http serves the portal's JSON API and its htmx user interface.
//
// This file holds the helpers that read request bodies and query strings.
// API clients post JSON, htmx forms post url-encoded values; handlers read
// both through RequestBodyParser.

package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fundportal/internal/core"
)

// maxBodyBytes bounds request bodies. Forms and JSON payloads are small.
const maxBodyBytes = 1 << 20

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once and keeps it for parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body as JSON when it looks like an object, otherwise as
// form values. Errors wrap core.ErrInvalidInput.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", core.ErrInvalidInput, p.err)
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidInput)
			return p.err
		}
		return nil
	}
	if trimmed[0] == '[' {
		p.err = fmt.Errorf("%w: expected a JSON object", core.ErrInvalidInput)
		return p.err
	}
	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body", core.ErrInvalidInput)
	}
	return p.err
}

// Get returns a trimmed, sanitised string value.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	_, ok := p.formData[key]
	return ok
}

// Text returns a multi-line value with control characters removed but line
// breaks kept. Used for remarks.
func (p *RequestBodyParser) Text(key string) string {
	if p.jsonData != nil {
		return sanitizeInput(stringValue(p.jsonData[key]))
	}
	return sanitizeInput(p.formData.Get(key))
}

// Int64 parses key as an id. Empty and "All" yield zero.
func (p *RequestBodyParser) Int64(key string) (int64, error) {
	return parseID(key, p.Get(key))
}

// Money parses key as rupees. Empty yields zero.
func (p *RequestBodyParser) Money(key string) (core.Money, error) {
	v := p.Get(key)
	if v == "" {
		return core.Money{}, nil
	}
	m, err := core.ParseMoney(v)
	if err != nil {
		return core.Money{}, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

// Bool reads checkbox and JSON booleans.
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// IDs reads a list of ids: a JSON array, repeated form fields or a comma
// separated string.
func (p *RequestBodyParser) IDs(key string) ([]int64, error) {
	var raw []string
	switch {
	case p.jsonData != nil:
		switch v := p.jsonData[key].(type) {
		case []any:
			for _, item := range v {
				raw = append(raw, stringValue(item))
			}
		case nil:
		default:
			raw = strings.Split(stringValue(v), ",")
		}
	case p.formData != nil:
		for _, v := range p.formData[key] {
			raw = append(raw, strings.Split(v, ",")...)
		}
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := parseID(key, s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func parseID(key, v string) (int64, error) {
	if core.IsAll(v) {
		return 0, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %s must be a number", core.ErrInvalidInput, key)
	}
	return id, nil
}

// ParseFilter reads the register filters from a query string. Every dropdown
// accepts "All" or nothing to mean no filter.
func ParseFilter(q url.Values) (core.Filter, error) {
	var f core.Filter
	var err error
	if v := q.Get("fy"); !core.IsAll(v) {
		if f.FY, err = core.ParseFinancialYear(v); err != nil {
			return core.Filter{}, err
		}
	}
	ids := []struct {
		key string
		dst *int64
	}{
		{"district", &f.DistrictID},
		{"scheme", &f.SchemeID},
		{"agency", &f.AgencyID},
		{"vendor", &f.VendorID},
	}
	for _, id := range ids {
		if *id.dst, err = parseID(id.key, firstOf(q, id.key, id.key+"_id")); err != nil {
			return core.Filter{}, err
		}
	}
	if v := q.Get("status"); !core.IsAll(v) {
		if f.Status, err = core.ParseDemandStatus(v); err != nil {
			return core.Filter{}, err
		}
	}
	if v := q.Get("work_status"); !core.IsAll(v) {
		if f.WorkStatus, err = core.ParseWorkStatus(v); err != nil {
			return core.Filter{}, err
		}
	}
	f.Search = sanitizeInput(q.Get("q"))
	return f, nil
}

// ParseFY reads an optional financial year; empty means the current one.
func ParseFY(q url.Values) (core.FinancialYear, error) {
	v := q.Get("fy")
	if core.IsAll(v) {
		return "", nil
	}
	return core.ParseFinancialYear(v)
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s in path", core.ErrInvalidInput, name)
	}
	return id, nil
}
