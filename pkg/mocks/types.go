package mocks

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileRefSentinel marks a response body string as a file reference in
// configuration files (e.g. "@users.json").
const fileRefSentinel = "@"

// BodyKind discriminates the two body representations.
type BodyKind int

// Body kinds.
const (
	BodyEmpty BodyKind = iota
	BodyLiteral
	BodyFile
)

// Body is the tagged response-body value of a mock definition: either a
// literal payload or a file reference. The raw config string is retained so
// a missing file can degrade to serving the literal reference text.
type Body struct {
	kind BodyKind
	// value is the literal payload, or the (unsanitized) file path for
	// BodyFile.
	value string
	// raw is the original config string, used as the degraded payload when
	// a referenced file is missing.
	raw string
}

// LiteralBody creates a literal body value.
func LiteralBody(value string) Body {
	return Body{kind: BodyLiteral, value: value, raw: value}
}

// FileBody creates a file-reference body value.
func FileBody(path string) Body {
	return Body{kind: BodyFile, value: path, raw: fileRefSentinel + path}
}

// Kind returns the body kind.
func (b Body) Kind() BodyKind { return b.kind }

// Value returns the literal payload or the referenced file path.
func (b Body) Value() string { return b.value }

// Raw returns the body as it appeared in configuration.
func (b Body) Raw() string { return b.raw }

// fromString classifies a config string into a literal or file reference.
func (b *Body) fromString(s string) {
	if rest, ok := strings.CutPrefix(s, fileRefSentinel); ok {
		*b = FileBody(rest)
		return
	}
	*b = LiteralBody(s)
}

// UnmarshalJSON accepts a string (possibly @-prefixed), or any JSON value,
// which is kept as its literal JSON text.
func (b *Body) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*b = Body{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.fromString(s)
		return nil
	}
	// Object, array, number, or boolean: serve the raw JSON as the body.
	*b = LiteralBody(string(data))
	return nil
}

// MarshalJSON renders the body back to its config representation.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.kind == BodyEmpty {
		return []byte("null"), nil
	}
	return json.Marshal(b.raw)
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML config files.
func (b *Body) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		b.fromString(value.Value)
		return nil
	}
	var obj interface{}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	*b = LiteralBody(string(data))
	return nil
}

// Definition describes a synthetic response for a method/URL pattern.
type Definition struct {
	// Method is the HTTP method this definition applies to.
	Method string `json:"method" yaml:"method"`

	// URL is the absolute URL pattern; * matches any character sequence.
	URL string `json:"url" yaml:"url"`

	// Nth restricts the definition to the pattern's nth qualifying call.
	// Zero means no restriction.
	Nth int `json:"nth,omitempty" yaml:"nth,omitempty"`

	// ResponseCode is the status code to return (default 200).
	ResponseCode int `json:"responseCode,omitempty" yaml:"responseCode,omitempty"`

	// ResponseBody is the literal payload or file reference to serve.
	ResponseBody Body `json:"responseBody,omitempty" yaml:"responseBody,omitempty"`

	// ResponseHeaders are additional headers set on the response.
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
}

// StatusCode returns the effective response status code.
func (d *Definition) StatusCode() int {
	if d.ResponseCode == 0 {
		return 200
	}
	return d.ResponseCode
}
