package model

// Question types.
const (
	QuestionText          = "text"
	QuestionTextArea      = "textarea"
	QuestionSelect        = "select"
	QuestionRadioGroup    = "radio-group"
	QuestionCheckboxGroup = "checkbox-group"
	QuestionCheckbox      = "checkbox"
	QuestionComboBox      = "combo-box"
	QuestionFile          = "file"
	QuestionDate          = "date"
	QuestionGroup         = "group"
)

// QuestionOption is one choice of a choice-type question.
type QuestionOption struct {
	Label    string `json:"label"              yaml:"label"`
	Value    string `json:"value,omitempty"    yaml:"value,omitempty"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Checked  bool   `json:"checked,omitempty"  yaml:"checked,omitempty"`
}

// Question is a logical field group derived from the current DOM.
type Question struct {
	Key       string           `json:"key"                 yaml:"key"`
	Type      string           `json:"type"                yaml:"type"`
	Label     string           `json:"label,omitempty"     yaml:"label,omitempty"`
	Name      string           `json:"name,omitempty"      yaml:"name,omitempty"`
	Selector  string           `json:"selector,omitempty"  yaml:"selector,omitempty"`
	Selectors []string         `json:"selectors,omitempty" yaml:"selectors,omitempty"`
	Required  bool             `json:"required,omitempty"  yaml:"required,omitempty"`
	Value     string           `json:"value,omitempty"     yaml:"value,omitempty"`
	Options   []QuestionOption `json:"options,omitempty"   yaml:"options,omitempty"`
	FrameID   int              `json:"frameId"             yaml:"frameId"`
}

// Choice reports whether q offers a fixed set of options.
func (q Question) Choice() bool {
	switch q.Type {
	case QuestionSelect, QuestionRadioGroup, QuestionCheckboxGroup, QuestionCheckbox, QuestionComboBox:
		return true
	}
	return false
}

// RadioGroup is a set of radios sharing a name.
type RadioGroup struct {
	Name     string           `json:"name"               yaml:"name"`
	Label    string           `json:"label,omitempty"    yaml:"label,omitempty"`
	Options  []QuestionOption `json:"options"            yaml:"options"`
	Selected string           `json:"selected,omitempty" yaml:"selected,omitempty"`
	FrameID  int              `json:"frameId"            yaml:"frameId"`
}

// FormStructure is the result of get_form_structure.
type FormStructure struct {
	Questions   []Question   `json:"questions"   yaml:"questions"`
	RadioGroups []RadioGroup `json:"radioGroups" yaml:"radioGroups"`
}

// AnswerResult reports one answer attempt.
type AnswerResult struct {
	Question         string   `json:"question"                   yaml:"question"`
	Key              string   `json:"key,omitempty"              yaml:"key,omitempty"`
	Answer           string   `json:"answer"                     yaml:"answer"`
	Success          bool     `json:"success"                    yaml:"success"`
	Defaulted        bool     `json:"defaulted,omitempty"        yaml:"defaulted,omitempty"`
	Error            string   `json:"error,omitempty"            yaml:"error,omitempty"`
	AvailableOptions []string `json:"availableOptions,omitempty" yaml:"availableOptions,omitempty"`
}
