package page

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/dom"
	"github.com/mj1618/web-bridge/internal/model"
)

// extracted is a question plus the live nodes behind it.
type extracted struct {
	q     model.Question
	nodes []*dom.Node
}

const groupSelector = "fieldset, [role=radiogroup], [role=group]"

func isField(n *dom.Node) bool {
	switch n.Tag() {
	case "input":
		switch n.InputType() {
		case "hidden", "submit", "button", "reset", "image":
			return false
		}
		return true
	case "select", "textarea":
		return true
	}
	return false
}

func isChoiceInput(n *dom.Node) bool {
	t := n.InputType()
	return t == "radio" || t == "checkbox"
}

// extractQuestions groups the visible fields of doc into questions, in
// document order of their first field.
func extractQuestions(doc *dom.Document, frameID int) []*extracted {
	var fields []*dom.Node
	for _, n := range doc.Elements() {
		if isField(n) && n.Visible() {
			fields = append(fields, n)
		}
	}

	var out []*extracted
	used := make(map[*dom.Node]bool)

	// fieldsets whose fields are all radios or all checkboxes
	groups, _ := doc.QueryAll(groupSelector)
	byGroup := make(map[*dom.Node][]*dom.Node)
	for _, f := range fields {
		if g := innermostGroup(f, groups); g != nil {
			byGroup[g] = append(byGroup[g], f)
		}
	}
	for _, g := range groups {
		members := byGroup[g]
		if len(members) == 0 {
			continue
		}
		kind := choiceKind(members)
		switch {
		case kind == "radio":
			out = append(out, choiceGroup(doc, model.QuestionRadioGroup, groupLabel(doc, g), g, members, frameID))
		case kind == "checkbox" && len(members) > 1:
			out = append(out, choiceGroup(doc, model.QuestionCheckboxGroup, groupLabel(doc, g), g, members, frameID))
		default:
			continue
		}
		for _, m := range members {
			used[m] = true
		}
	}

	// radios (and multi-checkboxes) sharing a name outside any group
	byName := make(map[string][]*dom.Node)
	for _, f := range fields {
		if !used[f] && isChoiceInput(f) && f.AttrOr("name", "") != "" {
			key := f.InputType() + "\x00" + f.AttrOr("name", "")
			byName[key] = append(byName[key], f)
		}
	}
	for _, f := range fields {
		if used[f] {
			continue
		}
		if isChoiceInput(f) && f.AttrOr("name", "") != "" {
			members := byName[f.InputType()+"\x00"+f.AttrOr("name", "")]
			if f.InputType() == "radio" || len(members) > 1 {
				typ := model.QuestionRadioGroup
				if f.InputType() == "checkbox" {
					typ = model.QuestionCheckboxGroup
				}
				container := commonAncestor(members)
				label := nameGroupLabel(doc, container, members)
				out = append(out, choiceGroup(doc, typ, label, container, members, frameID))
				for _, m := range members {
					used[m] = true
				}
				continue
			}
		}
		used[f] = true
		out = append(out, single(doc, f, frameID))
	}

	sortExtracted(doc, out)
	keys := make([]string, len(out))
	for i, x := range out {
		keys[i] = x.q.Label
		if keys[i] == "" {
			keys[i] = x.q.Name
		}
	}
	for i, k := range model.UniqueKeys(keys, "question") {
		out[i].q.Key = k
	}
	return out
}

func innermostGroup(f *dom.Node, groups []*dom.Node) *dom.Node {
	var best *dom.Node
	for _, g := range groups {
		if g.Contains(f) && (best == nil || best.Contains(g)) {
			best = g
		}
	}
	return best
}

func choiceKind(members []*dom.Node) string {
	kind := ""
	for _, m := range members {
		t := m.InputType()
		if t != "radio" && t != "checkbox" {
			return ""
		}
		if kind != "" && kind != t {
			return ""
		}
		kind = t
	}
	return kind
}

func groupLabel(doc *dom.Document, g *dom.Node) string {
	if g.Tag() == "fieldset" {
		if lg, _ := g.Query("legend"); lg != nil {
			if t := lg.VisibleText(); t != "" {
				return truncate(t, maxLabelLen)
			}
		}
	}
	in := labelInputs(doc, g)
	in.Text = ""
	return InferLabel(g, in)
}

// nameGroupLabel finds the prompt for a name-keyed group: the first text
// in the common container that is not inside one of the option labels.
func nameGroupLabel(doc *dom.Document, container *dom.Node, members []*dom.Node) string {
	if container != nil {
		if l := groupLabel(doc, container); l != "" && container.Matches(groupSelector) {
			return l
		}
		for _, c := range container.Descendants() {
			if c.Tag() == "label" || c.Tag() == "input" {
				continue
			}
			holdsOption := false
			for _, m := range members {
				if c.Contains(m) {
					holdsOption = true
					break
				}
			}
			if holdsOption || c.Closest("label") != nil {
				continue
			}
			if t := c.VisibleText(); t != "" {
				return truncate(t, maxLabelLen)
			}
		}
	}
	return members[0].AttrOr("name", "")
}

func commonAncestor(nodes []*dom.Node) *dom.Node {
	for p := nodes[0].Parent(); p != nil; p = p.Parent() {
		all := true
		for _, n := range nodes[1:] {
			if !p.Contains(n) {
				all = false
				break
			}
		}
		if all {
			return p
		}
	}
	return nil
}

func choiceGroup(doc *dom.Document, typ, label string, container *dom.Node, members []*dom.Node, frameID int) *extracted {
	x := &extracted{nodes: members}
	x.q = model.Question{
		Type:    typ,
		Label:   label,
		Name:    members[0].AttrOr("name", ""),
		FrameID: frameID,
	}
	if container != nil {
		x.q.Selector = Synthesize(doc, container).Primary
	}
	var checked []string
	for _, m := range members {
		opt := model.QuestionOption{
			Label:    optionLabel(doc, m),
			Value:    m.AttrOr("value", ""),
			Selector: Synthesize(doc, m).Primary,
			Checked:  m.Checked(),
		}
		if opt.Checked {
			checked = append(checked, opt.Label)
		}
		if m.HasAttr("required") {
			x.q.Required = true
		}
		x.q.Options = append(x.q.Options, opt)
		x.q.Selectors = append(x.q.Selectors, opt.Selector)
	}
	x.q.Value = strings.Join(checked, ", ")
	return x
}

func optionLabel(doc *dom.Document, n *dom.Node) string {
	in := labelInputs(doc, n)
	in.Text = ""
	if l := InferLabel(n, in); l != "" {
		return l
	}
	return n.AttrOr("value", "")
}

func single(doc *dom.Document, f *dom.Node, frameID int) *extracted {
	x := &extracted{nodes: []*dom.Node{f}}
	x.q = model.Question{
		Label:    LabelFor(doc, f),
		Name:     f.AttrOr("name", ""),
		Selector: Synthesize(doc, f).Primary,
		Required: f.HasAttr("required") || f.AttrOr("aria-required", "") == "true",
		Value:    currentValue(f),
		FrameID:  frameID,
	}
	if x.q.Label == "" {
		if g := f.Closest(groupSelector); g != nil {
			x.q.Label = groupLabel(doc, g)
		}
	}
	switch f.Tag() {
	case "textarea":
		x.q.Type = model.QuestionTextArea
	case "select":
		x.q.Type = model.QuestionSelect
		for _, o := range f.Options() {
			x.q.Options = append(x.q.Options, model.QuestionOption{
				Label:   collapse(o.Text()),
				Value:   o.Value(),
				Checked: o.Selected(),
			})
			if o.Selected() {
				x.q.Value = collapse(o.Text())
			}
		}
	default:
		switch t := f.InputType(); {
		case t == "checkbox" || t == "radio":
			x.q.Type = model.QuestionCheckbox
			x.q.Options = []model.QuestionOption{{Label: x.q.Label, Value: f.AttrOr("value", ""), Selector: x.q.Selector, Checked: f.Checked()}}
			x.q.Value = fmt.Sprint(f.Checked())
		case t == "file":
			x.q.Type = model.QuestionFile
		case model.InputTypeMap[t] == model.TypeDate:
			x.q.Type = model.QuestionDate
		case comboContainer(f) != nil:
			x.q.Type = model.QuestionComboBox
		default:
			x.q.Type = model.QuestionText
		}
	}
	return x
}

func sortExtracted(doc *dom.Document, xs []*extracted) {
	firsts := make([]*dom.Node, len(xs))
	pos := make(map[*dom.Node]int, len(xs))
	for i, x := range xs {
		firsts[i] = x.nodes[0]
	}
	dom.SortByDocumentOrder(doc, firsts)
	for i, n := range firsts {
		pos[n] = i
	}
	sorted := make([]*extracted, len(xs))
	for _, x := range xs {
		sorted[pos[x.nodes[0]]] = x
	}
	copy(xs, sorted)
}

// GetStructure returns the questions of doc and, separately, every radio
// group.
func GetStructure(doc *dom.Document, frameID int) model.FormStructure {
	fs := model.FormStructure{Questions: []model.Question{}, RadioGroups: []model.RadioGroup{}}
	for _, x := range extractQuestions(doc, frameID) {
		fs.Questions = append(fs.Questions, x.q)
		if x.q.Type == model.QuestionRadioGroup {
			rg := model.RadioGroup{Name: x.q.Name, Label: x.q.Label, Options: x.q.Options, FrameID: frameID}
			for _, o := range x.q.Options {
				if o.Checked {
					rg.Selected = o.Label
				}
			}
			fs.RadioGroups = append(fs.RadioGroups, rg)
		}
	}
	return fs
}

// Answer pairs a question reference with its answer.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answers keeps the order the caller wrote them in. It decodes from either a
// JSON object or an array of {question, answer}.
type Answers []Answer

func (a *Answers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []Answer
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*a = list
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if t, err := dec.Token(); err != nil {
		return err
	} else if t != json.Delim('{') {
		return fmt.Errorf("answers must be an object or array")
	}
	var out Answers
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := t.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = strings.Trim(string(raw), `"`)
		}
		out = append(out, Answer{Question: key, Answer: s})
	}
	*a = out
	return nil
}

// MatchQuestion finds the question ref refers to: exact label, exact name
// or key, label substring either way, then name substring.
func MatchQuestion(qs []model.Question, ref string) int {
	lr := strings.ToLower(strings.TrimSpace(ref))
	if lr == "" {
		return -1
	}
	for i, q := range qs {
		if strings.ToLower(q.Label) == lr {
			return i
		}
	}
	for i, q := range qs {
		if strings.ToLower(q.Name) == lr || q.Key == lr {
			return i
		}
	}
	for i, q := range qs {
		ll := strings.ToLower(q.Label)
		if ll != "" && (strings.Contains(ll, lr) || strings.Contains(lr, ll)) {
			return i
		}
	}
	for i, q := range qs {
		if q.Name != "" && strings.Contains(strings.ToLower(q.Name), lr) {
			return i
		}
	}
	return -1
}

var (
	yesWords = []string{"yes", "y", "true", "agree", "i agree", "accept", "on"}
	noWords  = []string{"no", "n", "false", "disagree", "decline", "off"}
)

func affinity(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, w := range yesWords {
		if s == w || strings.HasPrefix(s, w+",") || strings.HasPrefix(s, w+" ") {
			return 1
		}
	}
	for _, w := range noWords {
		if s == w || strings.HasPrefix(s, w+",") || strings.HasPrefix(s, w+" ") {
			return -1
		}
	}
	if s == "1" {
		return 1
	}
	if s == "0" {
		return -1
	}
	return 0
}

// ChooseOption picks the option an answer refers to. A yes/no answer
// prefers options that read as yes/no; otherwise exact text, exact value,
// then substring either way.
func ChooseOption(opts []model.QuestionOption, answer string) int {
	la := strings.ToLower(strings.TrimSpace(answer))
	if a := affinity(la); a != 0 {
		for i, o := range opts {
			if affinity(o.Label) == a || affinity(o.Value) == a {
				return i
			}
		}
	}
	for i, o := range opts {
		if strings.ToLower(o.Label) == la {
			return i
		}
	}
	for i, o := range opts {
		if o.Value != "" && strings.ToLower(o.Value) == la {
			return i
		}
	}
	if la == "" {
		return -1
	}
	for i, o := range opts {
		ll := strings.ToLower(o.Label)
		if ll != "" && (strings.Contains(ll, la) || strings.Contains(la, ll)) {
			return i
		}
	}
	return -1
}

func optionLabels(opts []model.QuestionOption) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Label)
	}
	return out
}

// AnswerOptions controls AnswerQuestions.
type AnswerOptions struct {
	Answers       Answers `json:"answers"`
	DefaultAnswer string  `json:"defaultAnswer,omitempty"`
}

// AnswerQuestions applies each answer to the question it names and, when a
// default is given, to every unanswered choice question. Free-text questions
// are never defaulted.
func (e *Engine) AnswerQuestions(ctx context.Context, opts AnswerOptions) ([]model.AnswerResult, error) {
	var qs []*extracted
	if err := e.do(ctx, func() error {
		qs = extractQuestions(e.doc, e.opts.FrameID)
		return nil
	}); err != nil {
		return nil, err
	}
	plain := make([]model.Question, len(qs))
	for i, x := range qs {
		plain[i] = x.q
	}

	covered := make(map[int]bool)
	results := make([]model.AnswerResult, 0, len(opts.Answers))
	for _, a := range opts.Answers {
		i := MatchQuestion(plain, a.Question)
		if i < 0 {
			labels := make([]string, 0, len(plain))
			for _, q := range plain {
				labels = append(labels, q.Label)
			}
			results = append(results, model.AnswerResult{
				Question:         a.Question,
				Answer:           a.Answer,
				Error:            "no question matches",
				AvailableOptions: labels,
			})
			continue
		}
		covered[i] = true
		results = append(results, e.answerOne(ctx, qs[i], a.Question, a.Answer, false))
	}
	if opts.DefaultAnswer != "" {
		for i, x := range qs {
			if covered[i] || !x.q.Choice() {
				continue
			}
			results = append(results, e.answerOne(ctx, x, x.q.Label, opts.DefaultAnswer, true))
		}
	}
	return results, nil
}

func (e *Engine) answerOne(ctx context.Context, x *extracted, ref, answer string, defaulted bool) model.AnswerResult {
	res := model.AnswerResult{Question: ref, Key: x.q.Key, Answer: answer, Defaulted: defaulted}
	var err error
	if x.q.Type == model.QuestionComboBox {
		err = e.answerComboBox(ctx, x, answer)
	} else {
		err = e.do(ctx, func() error { return e.applyAnswer(x, answer) })
	}
	if err != nil {
		res.Error = err.Error()
		var be *bridgeerr.Error
		if errors.As(err, &be) {
			if opts, ok := be.Details["availableOptions"].([]string); ok {
				res.AvailableOptions = opts
			}
		}
		if res.AvailableOptions == nil && len(x.q.Options) > 0 {
			res.AvailableOptions = optionLabels(x.q.Options)
		}
		return res
	}
	res.Success = true
	return res
}

func (e *Engine) applyAnswer(x *extracted, answer string) error {
	for _, n := range x.nodes {
		if !n.Connected() {
			return bridgeerr.Newf(bridgeerr.CodeElementNotFound, "field for %q was removed from the page", x.q.Label)
		}
	}
	switch x.q.Type {
	case model.QuestionRadioGroup:
		i := ChooseOption(x.q.Options, answer)
		if i < 0 {
			return noOption(answer, x.q.Options)
		}
		return e.click(x.nodes[i])
	case model.QuestionCheckboxGroup:
		want := make(map[int]bool)
		for _, part := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ';' }) {
			i := ChooseOption(x.q.Options, part)
			if i < 0 {
				return noOption(part, x.q.Options)
			}
			want[i] = true
		}
		for i, n := range x.nodes {
			if n.Checked() != want[i] {
				if err := e.click(n); err != nil {
					return err
				}
			}
		}
		return nil
	case model.QuestionCheckbox:
		n := x.nodes[0]
		want := truthy(answer) || (answer != "" && strings.EqualFold(answer, x.q.Label))
		if n.Checked() != want {
			return e.click(n)
		}
		return nil
	case model.QuestionSelect:
		n := x.nodes[0]
		opt := matchOption(n.Options(), answer)
		if opt == nil {
			if a := affinity(answer); a != 0 {
				for _, o := range n.Options() {
					if affinity(collapse(o.Text())) == a {
						opt = o
						break
					}
				}
			}
		}
		if opt == nil {
			return noOption(answer, x.q.Options)
		}
		_, err := e.selectNative(n, opt.Value())
		return err
	case model.QuestionFile:
		return bridgeerr.Newf(bridgeerr.CodeUnsupported, "file inputs cannot be answered")
	}
	return e.fill(x.nodes[0], answer, FillOptions{})
}

func (e *Engine) answerComboBox(ctx context.Context, x *extracted, answer string) error {
	n := x.nodes[0]
	if err := e.do(ctx, func() error { return e.fill(n, answer, FillOptions{}) }); err != nil {
		return err
	}
	var sel string
	if err := e.do(ctx, func() error {
		sel = Synthesize(e.doc, n).Primary
		return nil
	}); err != nil {
		return err
	}
	res, err := e.GetDropdownOptions(ctx, sel, DropdownOptions{})
	if err != nil {
		return err
	}
	return e.pickHarvested(ctx, res, answer)
}

// pickHarvested clicks the harvested option best matching answer.
func (e *Engine) pickHarvested(ctx context.Context, res *model.DropdownResult, answer string) error {
	opts := make([]model.QuestionOption, len(res.Options))
	for i, o := range res.Options {
		opts[i] = model.QuestionOption{Label: o.Text, Value: o.Value, Selector: o.Selector}
	}
	i := ChooseOption(opts, answer)
	if i < 0 {
		err := noOption(answer, opts)
		if len(opts) == 0 {
			err = bridgeerr.Newf(bridgeerr.CodeNoOptionsHarvested, "no options appeared for %q", answer).
				With("hint", res.Hint)
		}
		return err
	}
	return e.do(ctx, func() error {
		n, _ := e.doc.Query(opts[i].Selector)
		if n == nil {
			return bridgeerr.Newf(bridgeerr.CodeElementNotFound, "option %q disappeared before it could be clicked", opts[i].Label)
		}
		return e.click(n)
	})
}

func noOption(answer string, opts []model.QuestionOption) error {
	return bridgeerr.Newf(bridgeerr.CodeElementNotFound, "no option matches %q", answer).
		With("availableOptions", optionLabels(opts))
}
