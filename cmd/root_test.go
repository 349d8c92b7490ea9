package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mj1618/web-bridge/internal/transport/nativemsg"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	expected := []string{"serve", "mcp", "exec", "do", "screenshot", "native-host", "version"}
	commands := rootCmd.Commands()

	found := make(map[string]bool)
	for _, c := range commands {
		found[c.Name()] = true
	}

	for _, name := range expected {
		if !found[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	if rootCmd.Version == "" {
		t.Error("root command version should be set")
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{`{"selector":"#q"}`, `{"selector":"#q"}`},
		{`{selector: "#q", value: shoes}`, `{"selector":"#q","value":"shoes"}`},
		{"selector: '#q'\nclearFirst: true", `{"selector":"#q","clearFirst":true}`},
	}
	for _, tt := range tests {
		got, err := parsePayload(tt.in)
		if err != nil {
			t.Fatalf("parsePayload(%q): %v", tt.in, err)
		}
		if tt.want == "" {
			if got != nil {
				t.Errorf("parsePayload(%q) = %s, want nil", tt.in, got)
			}
			continue
		}
		var a, b any
		_ = json.Unmarshal(got, &a)
		_ = json.Unmarshal([]byte(tt.want), &b)
		if !jsonEqual(a, b) {
			t.Errorf("parsePayload(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := parsePayload("- a\n- b"); err == nil {
		t.Error("expected an error for a list payload")
	}
}

func jsonEqual(a, b any) bool {
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return bytes.Equal(x, y)
}

func TestParseSteps(t *testing.T) {
	steps, err := parseSteps([]byte(`
- fill: { selector: "#q", value: shoes }
- press_key: { key: Enter }
- action: click
  selector: "#go"
- list_elements:
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 4 {
		t.Fatalf("got %d steps, want 4", len(steps))
	}
	if steps[0]["action"] != "fill" || steps[0]["value"] != "shoes" {
		t.Errorf("step 1 = %v", steps[0])
	}
	if steps[2]["action"] != "click" || steps[2]["selector"] != "#go" {
		t.Errorf("step 3 = %v", steps[2])
	}
	if steps[3]["action"] != "list_elements" || len(steps[3]) != 1 {
		t.Errorf("step 4 = %v", steps[3])
	}

	for _, bad := range []string{"", "[]", "- fill: 3", "- fill: {}\n  click: {}"} {
		if _, err := parseSteps([]byte(bad)); err == nil {
			t.Errorf("parseSteps(%q) should fail", bad)
		}
	}
}

func TestExec_InlineDocument(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{
		"exec", "fill", `{selector: "#e", value: a@b.test}`,
		"--html", `<title>Signup</title><form><label for="e">Email</label><input id="e" name="email"></form>`,
		"--then", "get_form_structure",
		"--no-capture", "--format", "json",
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "a@b.test") || !strings.Contains(out.String(), "Email") {
		t.Errorf("form structure missing the filled field: %s", out.String())
	}
}

func TestRelayFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			_ = ws.WriteMessage(websocket.TextMessage, bytes.ToUpper(msg))
		}
	}))
	defer srv.Close()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	frames := nativemsg.NewConn(inR, outW, 0, inR)

	done := make(chan error, 1)
	go func() {
		done <- relayFrames(t.Context(), frames, "ws"+strings.TrimPrefix(srv.URL, "http"))
	}()

	if err := nativemsg.WriteFrame(inW, []byte(`{"type":"ping"}`), 0); err != nil {
		t.Fatal(err)
	}
	var hdr [4]byte
	if _, err := io.ReadFull(outR, hdr[:]); err != nil {
		t.Fatal(err)
	}
	body := make([]byte, binary.LittleEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(outR, body); err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"TYPE":"PING"}` {
		t.Errorf("relayed %s", body)
	}

	inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("relay ended with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after stdin closed")
	}
}
