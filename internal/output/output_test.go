package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPrintYAML_KeepsKeyOrder(t *testing.T) {
	var buf bytes.Buffer
	p := Printer{W: &buf, Format: FormatYAML}
	raw := json.RawMessage(`{"url":"https://shop.test/","title":"Cart","elements":[{"selector":"#go","index":1}]}`)
	if err := p.Print(raw); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	want := "url: https://shop.test/\ntitle: Cart\nelements:\n  - selector: '#go'\n    index: 1\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestPrintYAML_AmbiguousStringsStayStrings(t *testing.T) {
	var buf bytes.Buffer
	if err := (Printer{W: &buf}).Print(map[string]any{"a": "true", "b": "42", "c": "", "d": true}); err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid YAML: %v\n%s", err, buf.String())
	}
	if back["a"] != "true" || back["b"] != "42" || back["c"] != "" || back["d"] != true {
		t.Errorf("types changed in round trip: %#v", back)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (Printer{W: &buf, Format: FormatJSON}).Print(json.RawMessage(`{ "a" : [1, 2] }`)); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\"a\":[1,2]}\n" {
		t.Errorf("compact: got %q", got)
	}

	buf.Reset()
	if err := (Printer{W: &buf, Format: FormatJSON, Pretty: true}).Print(map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "{\n  \"a\": 1\n}\n" {
		t.Errorf("pretty: got %q", got)
	}
}

func TestMarshal_Null(t *testing.T) {
	b, err := Marshal(FormatYAML, json.RawMessage("null"), false)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "null" {
		t.Errorf("got %q", b)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatYAML, "yml": FormatYAML, "JSON": FormatJSON}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected an error for xml")
	}
}
