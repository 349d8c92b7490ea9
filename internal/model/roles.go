package model

// Semantic element types reported in ElementDescriptor.Type.
const (
	TypeButton    = "button"
	TypeLink      = "link"
	TypeTextInput = "text-input"
	TypeTextArea  = "textarea"
	TypeDropdown  = "dropdown"
	TypeComboBox  = "combo-box"
	TypeCheckbox  = "checkbox"
	TypeRadio     = "radio"
	TypeToggle    = "toggle"
	TypeSlider    = "slider"
	TypeFile      = "file-input"
	TypeDate      = "date-input"
	TypeTab       = "tab"
	TypeMenuItem  = "menu-item"
	TypeOption    = "option"
	TypeEditable  = "editable"
	TypeSummary   = "summary"
	TypeOther     = "other"
)

// RoleMap maps ARIA role values to semantic types.
var RoleMap = map[string]string{
	"button":           TypeButton,
	"link":             TypeLink,
	"textbox":          TypeTextInput,
	"searchbox":        TypeTextInput,
	"combobox":         TypeComboBox,
	"listbox":          TypeDropdown,
	"checkbox":         TypeCheckbox,
	"menuitemcheckbox": TypeCheckbox,
	"radio":            TypeRadio,
	"menuitemradio":    TypeRadio,
	"switch":           TypeToggle,
	"slider":           TypeSlider,
	"spinbutton":       TypeTextInput,
	"tab":              TypeTab,
	"menuitem":         TypeMenuItem,
	"option":           TypeOption,
	"treeitem":         TypeOption,
}

// InputTypeMap maps <input type> values to semantic types.
var InputTypeMap = map[string]string{
	"button":         TypeButton,
	"submit":         TypeButton,
	"reset":          TypeButton,
	"image":          TypeButton,
	"checkbox":       TypeCheckbox,
	"radio":          TypeRadio,
	"range":          TypeSlider,
	"file":           TypeFile,
	"date":           TypeDate,
	"datetime-local": TypeDate,
	"month":          TypeDate,
	"week":           TypeDate,
	"time":           TypeDate,
}

// MetaTypes maps meta-type names to the concrete types they expand to.
var MetaTypes = map[string][]string{
	"input":       {TypeTextInput, TypeTextArea, TypeComboBox, TypeDate, TypeEditable},
	"choice":      {TypeDropdown, TypeComboBox, TypeCheckbox, TypeRadio, TypeToggle},
	"clickable":   {TypeButton, TypeLink, TypeTab, TypeMenuItem, TypeSummary, TypeOther},
	"interactive": {TypeTextInput, TypeTextArea, TypeComboBox, TypeDropdown, TypeCheckbox, TypeRadio, TypeToggle, TypeSlider},
}

// ExpandTypes expands any meta-types in the given list to their concrete
// types. Other names pass through unchanged. Duplicates are removed.
func ExpandTypes(types []string) []string {
	seen := make(map[string]bool, len(types))
	var expanded []string
	for _, t := range types {
		if concrete, ok := MetaTypes[t]; ok {
			for _, c := range concrete {
				if !seen[c] {
					seen[c] = true
					expanded = append(expanded, c)
				}
			}
		} else if !seen[t] {
			seen[t] = true
			expanded = append(expanded, t)
		}
	}
	return expanded
}

// MapRole converts an ARIA role to a semantic type.
func MapRole(role string) string {
	if t, ok := RoleMap[role]; ok {
		return t
	}
	return ""
}
