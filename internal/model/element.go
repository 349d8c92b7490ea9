package model

// Confidence tiers for selector alternatives.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Box is an axis-aligned rectangle.
type Box struct {
	X      float64 `json:"x"      yaml:"x"`
	Y      float64 `json:"y"      yaml:"y"`
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Point is a coordinate pair.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// SelectorAlternative is a secondary locator for an element.
type SelectorAlternative struct {
	Selector   string `json:"selector"   yaml:"selector"`
	Strategy   string `json:"strategy"   yaml:"strategy"`
	Confidence string `json:"confidence" yaml:"confidence"`
}

// ElementDescriptor describes one interactive element. Descriptors are
// computed fresh on every query.
type ElementDescriptor struct {
	Index        int                   `json:"index"                  yaml:"index"`
	Tag          string                `json:"tag"                    yaml:"tag"`
	Type         string                `json:"type"                   yaml:"type"`
	Role         string                `json:"role,omitempty"         yaml:"role,omitempty"`
	Label        string                `json:"label,omitempty"        yaml:"label,omitempty"`
	Value        string                `json:"value,omitempty"        yaml:"value,omitempty"`
	Name         string                `json:"name,omitempty"         yaml:"name,omitempty"`
	Placeholder  string                `json:"placeholder,omitempty"  yaml:"placeholder,omitempty"`
	Href         string                `json:"href,omitempty"         yaml:"href,omitempty"`
	Selector     string                `json:"selector"               yaml:"selector"`
	Alternatives []SelectorAlternative `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	Ref          string                `json:"ref,omitempty"          yaml:"ref,omitempty"`

	// Bounds is in document coordinates, Viewport is normalized to 0-1 of
	// the viewport and Screen is absolute, including window chrome.
	Bounds       Box   `json:"bounds"       yaml:"bounds"`
	Viewport     Box   `json:"viewport"     yaml:"viewport"`
	Screen       Box   `json:"screen"       yaml:"screen"`
	ScreenCenter Point `json:"screenCenter" yaml:"screenCenter"`
	InViewport   bool  `json:"inViewport"   yaml:"inViewport"`

	Disabled bool  `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Required bool  `json:"required,omitempty" yaml:"required,omitempty"`
	Checked  *bool `json:"checked,omitempty"  yaml:"checked,omitempty"`
	Focused  bool  `json:"focused,omitempty"  yaml:"focused,omitempty"`

	FrameID    int    `json:"frameId"              yaml:"frameId"`
	ShadowHost string `json:"shadowHost,omitempty" yaml:"shadowHost,omitempty"`

	// Landmark is the slug path of enclosing labeled regions, used to build Ref.
	Landmark string `json:"-" yaml:"-"`
}
