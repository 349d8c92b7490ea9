package server

import "github.com/mark3labs/mcp-go/mcp"

type paramKind int

const (
	str paramKind = iota
	num
	boolean
	object
	array
)

type param struct {
	name     string
	kind     paramKind
	desc     string
	required bool
}

// tool describes one command exposed over MCP. Page commands also accept
// tabId and frameId.
type tool struct {
	name     string
	desc     string
	params   []param
	tabLevel bool
	readOnly bool
}

var (
	selectorParam = param{"selector", str, "CSS selector of the target element", false}
	refParam      = param{"ref", str, "Stable element ref from list_elements, used instead of selector", false}
)

var tools = []tool{
	{name: "list_tabs", desc: "List open tabs", tabLevel: true, readOnly: true},
	{name: "find_tabs", desc: "Find tabs whose URL or title match glob patterns", tabLevel: true, readOnly: true, params: []param{
		{"url", str, "Glob over the tab URL, e.g. https://*.example.com/*", false},
		{"title", str, "Case-insensitive glob over the tab title", false},
	}},
	{name: "create_tab", desc: "Open a tab on a URL or inline HTML", tabLevel: true, params: []param{
		{"url", str, "URL to load", false},
		{"html", str, "Inline HTML document to load instead of a URL", false},
		{"active", boolean, "Focus the new tab (default: true)", false},
	}},
	{name: "focus_tab", desc: "Make a tab the active tab", tabLevel: true, params: []param{
		{"tabId", num, "Tab to focus", true},
	}},
	{name: "close_tab", desc: "Close a tab (default: the active tab)", tabLevel: true, params: []param{
		{"tabId", num, "Tab to close", false},
	}},
	{name: "navigate", desc: "Load a URL in a tab", tabLevel: true, params: []param{
		{"url", str, "URL to load", true},
		{"tabId", num, "Tab to navigate (default: active)", false},
	}},
	{name: "go_back", desc: "Go back in a tab's history", tabLevel: true, params: []param{{"tabId", num, "Tab (default: active)", false}}},
	{name: "go_forward", desc: "Go forward in a tab's history", tabLevel: true, params: []param{{"tabId", num, "Tab (default: active)", false}}},
	{name: "list_frames", desc: "List the frames of a tab and whether each is reachable", tabLevel: true, readOnly: true, params: []param{
		{"tabId", num, "Tab (default: active)", false},
	}},
	{name: "screenshot", desc: "Capture the visible area of a tab, optionally outlining interactive elements", tabLevel: true, params: []param{
		{"tabId", num, "Tab (default: active)", false},
		{"format", str, "Image format: png, jpg (default: png)", false},
		{"quality", num, "JPEG quality 1-100 (default: 80)", false},
		{"scale", num, "Scale factor 0.1-1.0 (default: 1)", false},
		{"annotate", boolean, "Outline interactive elements", false},
		{"labels", str, "Annotation labels: index or coords (default: index)", false},
	}},

	{name: "list_elements", desc: "List interactive elements across all reachable frames, with unique selectors and screen coordinates", readOnly: true, params: []param{
		{"types", array, "Element types to keep, e.g. [\"button\", \"input\"]", false},
		{"text", str, "Keep elements whose label or text contains this", false},
		{"inViewport", boolean, "Only elements currently in the viewport", false},
		{"limit", num, "Max elements per frame", false},
		{"scope", str, "Only descendants of the first element matching this selector", false},
	}},
	{name: "find_elements_by_text", desc: "Find elements by visible text across all reachable frames", readOnly: true, params: []param{
		{"text", str, "Text to look for", true},
		{"exact", boolean, "Require an exact match", false},
		{"limit", num, "Max results per frame", false},
	}},
	{name: "get_page_info", desc: "URL, title, ready state, viewport and element counts of a frame", readOnly: true},
	{name: "get_page_context", desc: "Compact page summary: headings, interactive elements and form questions", readOnly: true},
	{name: "get_form_structure", desc: "Group form controls into questions and radio groups", readOnly: true},
	{name: "answer_questions", desc: "Answer form questions by their text", params: []param{
		{"answers", object, "Map of question text to answer", true},
		{"defaultAnswer", str, "Answer for every unanswered choice question", false},
	}},
	{name: "click", desc: "Click an element", params: []param{selectorParam, refParam}},
	{name: "click_by_text", desc: "Click the element whose text matches", params: []param{
		{"text", str, "Visible text", true},
		{"index", num, "Which match to click when several do (0-based)", false},
		{"elementType", str, "Restrict to this element type", false},
	}},
	{name: "fill", desc: "Type a value into a field, firing key and input events", params: []param{
		selectorParam, refParam,
		{"value", str, "Value to enter", true},
		{"simulateTyping", boolean, "Send per-character key events (default: true)", false},
		{"clearFirst", boolean, "Clear the field first (default: true)", false},
	}},
	{name: "select_option", desc: "Choose an option in a native or custom dropdown", params: []param{
		selectorParam, refParam,
		{"value", str, "Option value or label", true},
	}},
	{name: "hover", desc: "Move the pointer over an element", params: []param{selectorParam, refParam}},
	{name: "drag", desc: "Drag one element onto another", params: []param{
		{"from", str, "Selector of the element to drag", true},
		{"to", str, "Selector of the drop target", true},
	}},
	{name: "press_key", desc: "Press a key, optionally on a specific element", params: []param{
		{"key", str, "Key name, e.g. Enter, Tab, Escape, ArrowDown", true},
		selectorParam,
	}},
	{name: "scroll", desc: "Scroll the page or an element", params: []param{
		selectorParam,
		{"x", num, "Absolute horizontal scroll position", false},
		{"y", num, "Absolute vertical scroll position", false},
		{"deltaX", num, "Relative horizontal scroll", false},
		{"deltaY", num, "Relative vertical scroll", false},
	}},
	{name: "scroll_into_view", desc: "Scroll an element into the viewport", params: []param{selectorParam, refParam}},
	{name: "wait_for_selector", desc: "Wait until a selector matches", params: []param{
		{"selector", str, "CSS selector", true},
		{"timeout", num, "Timeout in milliseconds (default: 10000)", false},
		{"visible", boolean, "Also require the element to be visible", false},
	}},
	{name: "wait_for_load", desc: "Wait until the document has finished loading", params: []param{
		{"timeout", num, "Timeout in milliseconds", false},
	}},
	{name: "get_text", desc: "Visible text of the page or an element", readOnly: true, params: []param{selectorParam}},
	{name: "get_html", desc: "HTML of the page or an element", readOnly: true, params: []param{
		selectorParam,
		{"outer", boolean, "Include the element itself", false},
	}},
	{name: "detect_combobox", desc: "Check whether an element behaves as a dropdown and how it opens", readOnly: true, params: []param{selectorParam, refParam}},
	{name: "get_dropdown_options", desc: "Open a dropdown and list its options", params: []param{
		{"selector", str, "Selector of the dropdown trigger", true},
		{"waitMs", num, "Settle time after opening in milliseconds", false},
		{"closeAfter", boolean, "Close the dropdown afterwards", false},
	}},
	{name: "find_element", desc: "Describe the element a selector or ref resolves to", readOnly: true, params: []param{selectorParam, refParam}},
	{name: "get_console_logs", desc: "Buffered console messages", params: []param{
		{"level", str, "Only this level: log, info, warn, error", false},
		{"limit", num, "Most recent N entries", false},
		{"clear", boolean, "Clear the buffer after reading", false},
	}},
	{name: "get_network_requests", desc: "Buffered network requests", params: []param{
		{"limit", num, "Most recent N entries", false},
		{"failedOnly", boolean, "Only failed requests", false},
		{"clear", boolean, "Clear the buffer after reading", false},
	}},
	{name: "get_local_storage", desc: "Local storage contents, or one key", readOnly: true, params: []param{
		{"key", str, "Key to read", false},
	}},
	{name: "get_cookies", desc: "Cookies visible to the page", readOnly: true},
	{name: "set_watch_mode", desc: "Start or stop mutation reports for a frame", params: []param{
		{"enabled", boolean, "Watch for mutations", true},
	}},
}

var routingParams = []param{
	{"tabId", num, "Tab (default: active)", false},
	{"frameId", num, "Run in this frame only", false},
}

func (t tool) mcpTool() mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.desc)}
	params := t.params
	if !t.tabLevel {
		params = append(append([]param{}, params...), routingParams...)
	}
	for _, p := range params {
		popts := []mcp.PropertyOption{mcp.Description(p.desc)}
		if p.required {
			popts = append(popts, mcp.Required())
		}
		switch p.kind {
		case num:
			opts = append(opts, mcp.WithNumber(p.name, popts...))
		case boolean:
			opts = append(opts, mcp.WithBoolean(p.name, popts...))
		case object:
			opts = append(opts, mcp.WithObject(p.name, popts...))
		case array:
			opts = append(opts, mcp.WithArray(p.name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.name, popts...))
		}
	}
	return mcp.NewTool(t.name, opts...)
}
