package model

import "strings"

// Combo-box component families.
const (
	FamilyReactSelect = "react-select"
	FamilyMUI         = "mui-autocomplete"
	FamilyAntDesign   = "antd-select"
	FamilySelect2     = "select2"
	FamilyChosen      = "chosen"
	FamilyHeadlessUI  = "headless-ui"
	FamilyDownshift   = "downshift"
	FamilyVueSelect   = "vue-select"
	FamilyGeneric     = "generic"
)

// DropdownOption is one harvested option.
type DropdownOption struct {
	Text     string `json:"text"               yaml:"text"`
	Value    string `json:"value,omitempty"    yaml:"value,omitempty"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Selected bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Bounds   Box    `json:"bounds"             yaml:"bounds"`
	Screen   Point  `json:"screenCenter"       yaml:"screenCenter"`
}

// ComboBoxInfo is the result of probing a text input for a custom dropdown.
type ComboBoxInfo struct {
	InputSelector     string           `json:"inputSelector"               yaml:"inputSelector"`
	Family            string           `json:"family"                      yaml:"family"`
	Open              bool             `json:"open"                        yaml:"open"`
	ContainerSelector string           `json:"containerSelector"           yaml:"containerSelector"`
	ToggleSelector    string           `json:"toggleSelector,omitempty"    yaml:"toggleSelector,omitempty"`
	ListboxSelector   string           `json:"listboxSelector,omitempty"   yaml:"listboxSelector,omitempty"`
	Options           []DropdownOption `json:"options,omitempty"           yaml:"options,omitempty"`
}

// DropdownResult is returned by get_dropdown_options.
type DropdownResult struct {
	Selector string           `json:"selector"           yaml:"selector"`
	Native   bool             `json:"native"             yaml:"native"`
	Family   string           `json:"family,omitempty"   yaml:"family,omitempty"`
	Opened   bool             `json:"opened"             yaml:"opened"`
	Closed   bool             `json:"closed,omitempty"   yaml:"closed,omitempty"`
	Source   string           `json:"source,omitempty"   yaml:"source,omitempty"`
	Options  []DropdownOption `json:"options"            yaml:"options"`
	Hint     string           `json:"hint,omitempty"     yaml:"hint,omitempty"`
}

// familyFingerprints maps name fragments found in class/id/data attributes
// to component families. Order matters: earlier entries win.
var familyFingerprints = []struct {
	fragment string
	family   string
}{
	{"react-select", FamilyReactSelect},
	{"muiautocomplete", FamilyMUI},
	{"mui-autocomplete", FamilyMUI},
	{"ant-select", FamilyAntDesign},
	{"select2", FamilySelect2},
	{"chosen-", FamilyChosen},
	{"headlessui", FamilyHeadlessUI},
	{"downshift", FamilyDownshift},
	{"vs__", FamilyVueSelect},
	{"v-select", FamilyVueSelect},
}

// ComboBoxHints are the fragments that make an ancestor a candidate
// combo-box container.
var ComboBoxHints = []string{"select", "combobox", "combo-box", "autocomplete", "dropdown", "typeahead"}

// ClassifyFamily returns the component family for a chain of attribute maps,
// innermost first. It falls back to FamilyGeneric.
func ClassifyFamily(chain []map[string]string) string {
	for _, fp := range familyFingerprints {
		for _, attrs := range chain {
			if attrsContain(attrs, fp.fragment) {
				return fp.family
			}
		}
	}
	for _, attrs := range chain {
		if strings.HasPrefix(attrs["id"], "headlessui-") {
			return FamilyHeadlessUI
		}
		if attrs["role"] == "combobox" && attrs["aria-autocomplete"] != "" {
			return FamilyDownshift
		}
	}
	return FamilyGeneric
}

func attrsContain(attrs map[string]string, fragment string) bool {
	for _, key := range []string{"class", "id", "data-testid"} {
		if strings.Contains(strings.ToLower(attrs[key]), fragment) {
			return true
		}
	}
	return false
}

// NameHints reports whether the class or id contains any of fragments
// (case-insensitive).
func NameHints(attrs map[string]string, fragments ...string) bool {
	class := strings.ToLower(attrs["class"])
	id := strings.ToLower(attrs["id"])
	for _, f := range fragments {
		if strings.Contains(class, f) || strings.Contains(id, f) {
			return true
		}
	}
	return false
}
