package event

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Properties is a string map that remembers insertion order. The zero value
// is an empty set of properties.
type Properties struct {
	keys   []string
	values map[string]string
}

// Has reports whether key is present.
func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns the value for key.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of properties.
func (p *Properties) Len() int { return len(p.keys) }

// Keys returns the keys in insertion order.
func (p *Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Properties) set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Properties) clone() Properties {
	c := Properties{keys: make([]string, len(p.keys))}
	copy(c.keys, p.keys)
	if p.values != nil {
		c.values = make(map[string]string, len(p.values))
		for k, v := range p.values {
			c.values[k] = v
		}
	}
	return c
}

// With returns a copy of p with key=value appended. If key is already
// present the copy keeps the existing value.
func (p Properties) With(key, value string) Properties {
	c := p.clone()
	if !c.Has(key) {
		c.set(key, value)
	}
	return c
}

// MarshalJSON writes the properties as a JSON object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of strings, preserving document order.
// A key repeated in the document keeps its first value.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = Properties{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}
	out := Properties{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return err
		}
		key := kt.(string)
		if out.Has(key) {
			continue
		}
		out.set(key, v)
	}
	*p = out
	return nil
}
