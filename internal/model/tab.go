package model

// Tab represents a browser tab.
type Tab struct {
	ID       int    `json:"id"                 yaml:"id"`
	URL      string `json:"url"                yaml:"url"`
	Title    string `json:"title"              yaml:"title"`
	Active   bool   `json:"active,omitempty"   yaml:"active,omitempty"`
	Loading  bool   `json:"loading,omitempty"  yaml:"loading,omitempty"`
	WindowID int    `json:"windowId,omitempty" yaml:"windowId,omitempty"`
}

// Frame identifies one document inside a tab. Frame 0 is the top frame.
type Frame struct {
	ID         int    `json:"frameId"             yaml:"frameId"`
	ParentID   int    `json:"parentFrameId"       yaml:"parentFrameId"`
	TabID      int    `json:"tabId"               yaml:"tabId"`
	URL        string `json:"url"                 yaml:"url"`
	Accessible bool   `json:"accessible"          yaml:"accessible"`
	Name       string `json:"name,omitempty"      yaml:"name,omitempty"`
}

// MutationReport summarizes one debounce window of DOM changes.
type MutationReport struct {
	Initial        bool            `json:"initial,omitempty"        yaml:"initial,omitempty"`
	AddedNodes     int             `json:"addedNodes"               yaml:"addedNodes"`
	RemovedNodes   int             `json:"removedNodes"             yaml:"removedNodes"`
	Attributes     []AttrChange    `json:"attributeChanges,omitempty" yaml:"attributeChanges,omitempty"`
	HasNewForms    bool            `json:"hasNewForms"              yaml:"hasNewForms"`
	HasNewInputs   bool            `json:"hasNewInputs"             yaml:"hasNewInputs"`
	HasNewButtons  bool            `json:"hasNewButtons"            yaml:"hasNewButtons"`
	HasNewModals   bool            `json:"hasNewModals"             yaml:"hasNewModals"`
	ElementCount   int             `json:"elementCount"             yaml:"elementCount"`
	ElementChanges []ElementChange `json:"elementChanges,omitempty" yaml:"elementChanges,omitempty"`
	URL            string          `json:"url,omitempty"            yaml:"url,omitempty"`
	Title          string          `json:"title,omitempty"          yaml:"title,omitempty"`
	FrameID        int             `json:"frameId"                  yaml:"frameId"`
	TabID          int             `json:"tabId,omitempty"          yaml:"tabId,omitempty"`
	Timestamp      int64           `json:"timestamp"                yaml:"timestamp"`
}

// AttrChange is one attribute mutation.
type AttrChange struct {
	Selector  string `json:"selector"           yaml:"selector"`
	Attribute string `json:"attribute"          yaml:"attribute"`
	OldValue  string `json:"oldValue,omitempty" yaml:"oldValue,omitempty"`
}

// PageInfo is the result of get_page_info.
type PageInfo struct {
	URL          string `json:"url"          yaml:"url"`
	Title        string `json:"title"        yaml:"title"`
	ReadyState   string `json:"readyState"   yaml:"readyState"`
	Viewport     Box    `json:"viewport"     yaml:"viewport"`
	Scroll       Point  `json:"scroll"       yaml:"scroll"`
	DocumentSize Box    `json:"documentSize" yaml:"documentSize"`
	Elements     int    `json:"elements"     yaml:"elements"`
	Interactive  int    `json:"interactive"  yaml:"interactive"`
	Forms        int    `json:"forms"        yaml:"forms"`
	Frames       int    `json:"frames"       yaml:"frames"`
	Watching     bool   `json:"watching"     yaml:"watching"`
	FrameID      int    `json:"frameId"      yaml:"frameId"`
}
