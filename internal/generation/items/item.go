package items

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var ErrInvalidItem = errors.New("invalid item")

// Item is one generated question or flashcard. The concrete value is always
// one of *MCQ, *TrueFalse, *FillBlank, *BasicCard, *ClozeCard, *ReversedCard.
type Item interface {
	Type() Type
	Kind() string
	// DisplayText is the text a learner reads first. Validation and
	// deduplication operate on it.
	DisplayText() string
	Concept() string
	validate() error
}

// Meta is shared by every variant.
type Meta struct {
	ConceptName string `json:"concept,omitempty" jsonschema:"description=Short name of the concept this item tests"`
	Explanation string `json:"explanation,omitempty" jsonschema:"description=One or two sentences explaining the answer"`
}

func (m Meta) Concept() string { return strings.TrimSpace(m.ConceptName) }

type MCQ struct {
	Question     string   `json:"question" jsonschema:"required,description=The question stem"`
	Options      []string `json:"options" jsonschema:"required,minItems=2,maxItems=6,description=Answer options"`
	CorrectIndex int      `json:"correct_index" jsonschema:"required,minimum=0,description=Zero-based index of the correct option"`
	Meta
}

type TrueFalse struct {
	Statement string `json:"statement" jsonschema:"required,description=A statement that is either true or false"`
	Answer    bool   `json:"answer" jsonschema:"required,description=Whether the statement is true"`
	Meta
}

type FillBlank struct {
	Sentence string `json:"sentence" jsonschema:"required,description=Sentence with the missing part replaced by ___"`
	Answer   string `json:"answer" jsonschema:"required,description=The missing word or phrase"`
	Meta
}

type BasicCard struct {
	Front string `json:"front" jsonschema:"required"`
	Back  string `json:"back" jsonschema:"required"`
	Meta
}

type ClozeCard struct {
	Text string `json:"text" jsonschema:"required,description=Text with deletions written as {{c1::answer}}"`
	Meta
}

type ReversedCard struct {
	Front string `json:"front" jsonschema:"required"`
	Back  string `json:"back" jsonschema:"required"`
	Meta
}

func (*MCQ) Type() Type          { return TypeMCQ }
func (*TrueFalse) Type() Type    { return TypeTrueFalse }
func (*FillBlank) Type() Type    { return TypeFillBlank }
func (*BasicCard) Type() Type    { return TypeBasic }
func (*ClozeCard) Type() Type    { return TypeCloze }
func (*ReversedCard) Type() Type { return TypeReversed }

func (m *MCQ) Kind() string          { return m.Type().Kind() }
func (t *TrueFalse) Kind() string    { return t.Type().Kind() }
func (f *FillBlank) Kind() string    { return f.Type().Kind() }
func (b *BasicCard) Kind() string    { return b.Type().Kind() }
func (c *ClozeCard) Kind() string    { return c.Type().Kind() }
func (r *ReversedCard) Kind() string { return r.Type().Kind() }

func (m *MCQ) DisplayText() string          { return m.Question }
func (t *TrueFalse) DisplayText() string    { return t.Statement }
func (f *FillBlank) DisplayText() string    { return f.Sentence }
func (b *BasicCard) DisplayText() string    { return b.Front }
func (c *ClozeCard) DisplayText() string    { return c.Revealed() }
func (r *ReversedCard) DisplayText() string { return r.Front }

// CorrectOption returns the text of the correct option.
func (m *MCQ) CorrectOption() string {
	if m.CorrectIndex < 0 || m.CorrectIndex >= len(m.Options) {
		return ""
	}
	return m.Options[m.CorrectIndex]
}

var (
	blankRe = regexp.MustCompile(`_{3,}`)
	clozeRe = regexp.MustCompile(`\{\{c\d+::([^}]+?)(?:::[^}]*)?\}\}`)
)

// Deletions returns the hidden parts of a cloze text in order.
func (c *ClozeCard) Deletions() []string {
	return lo.Map(clozeRe.FindAllStringSubmatch(c.Text, -1), func(m []string, _ int) string {
		return strings.TrimSpace(m[1])
	})
}

// Revealed is the cloze text with every deletion shown.
func (c *ClozeCard) Revealed() string {
	return clozeRe.ReplaceAllString(c.Text, "$1")
}

func invalid(t Type, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidItem, t, fmt.Sprintf(format, args...))
}

func (m *MCQ) validate() error {
	m.Question = strings.TrimSpace(m.Question)
	if m.Question == "" {
		return invalid(TypeMCQ, "empty question")
	}
	correct := m.CorrectOption()
	opts := lo.Filter(lo.Map(m.Options, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}), func(o string, _ int) bool { return o != "" })
	if len(opts) != len(m.Options) {
		return invalid(TypeMCQ, "blank option")
	}
	if len(opts) < 2 || len(opts) > 6 {
		return invalid(TypeMCQ, "need 2 to 6 options, got %d", len(opts))
	}
	if len(lo.Uniq(lo.Map(opts, func(o string, _ int) string { return strings.ToLower(o) }))) != len(opts) {
		return invalid(TypeMCQ, "duplicate options")
	}
	if correct == "" {
		return invalid(TypeMCQ, "correct_index %d out of range", m.CorrectIndex)
	}
	m.Options = opts
	return nil
}

func (t *TrueFalse) validate() error {
	t.Statement = strings.TrimSpace(t.Statement)
	if t.Statement == "" {
		return invalid(TypeTrueFalse, "empty statement")
	}
	return nil
}

func (f *FillBlank) validate() error {
	f.Sentence = strings.TrimSpace(f.Sentence)
	f.Answer = strings.TrimSpace(f.Answer)
	if !blankRe.MatchString(f.Sentence) {
		return invalid(TypeFillBlank, "sentence has no blank")
	}
	if f.Answer == "" {
		return invalid(TypeFillBlank, "empty answer")
	}
	return nil
}

func validateCard(t Type, front, back *string) error {
	*front = strings.TrimSpace(*front)
	*back = strings.TrimSpace(*back)
	if *front == "" || *back == "" {
		return invalid(t, "front and back are required")
	}
	return nil
}

func (b *BasicCard) validate() error    { return validateCard(TypeBasic, &b.Front, &b.Back) }
func (r *ReversedCard) validate() error { return validateCard(TypeReversed, &r.Front, &r.Back) }

func (c *ClozeCard) validate() error {
	c.Text = strings.TrimSpace(c.Text)
	if len(c.Deletions()) == 0 {
		return invalid(TypeCloze, "no {{c1::...}} deletion")
	}
	return nil
}
