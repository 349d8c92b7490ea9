// Package output renders command results for people and agents. Results
// arrive as JSON; YAML output keeps the original key order.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "yaml", "yml" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// Printer writes values in one format.
type Printer struct {
	W      io.Writer
	Format Format
	// Pretty indents JSON output.
	Pretty bool
}

// Print serializes v. json.RawMessage values are rendered as the document
// they contain.
func (p Printer) Print(v any) error {
	b, err := Marshal(p.Format, v, p.Pretty)
	if err != nil {
		return err
	}
	_, err = p.W.Write(b)
	return err
}

// Marshal serializes v in format. The result ends in a newline.
func Marshal(format Format, v any, pretty bool) ([]byte, error) {
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("null")
	}
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if pretty {
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return nil, fmt.Errorf("json indent: %w", err)
			}
		} else if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("json compact: %w", err)
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	case FormatYAML, "":
		return toYAML(raw)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// toYAML re-encodes a JSON document as block-style YAML. JSON is valid
// YAML, so decoding into a node keeps key order.
func toYAML(raw json.RawMessage) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	if doc.Kind == 0 {
		return []byte("null\n"), nil
	}
	block(&doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	return buf.Bytes(), nil
}

// block clears the flow and quoting styles JSON input carries. The encoder
// re-quotes strings that would otherwise read back as another type.
func block(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		block(c)
	}
}
