package backend

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/llm"
)

type envelope[T any] struct {
	Items []T `json:"items"`
}

// promptSpec declares the prompt of one item type. System and User are Go
// templates over promptInput.
type promptSpec struct {
	Type       items.Type
	SchemaName string
	Schema     func() (map[string]any, error)
	Task       string
	System     string
	User       string
}

type promptInput struct {
	Task           string
	Count          int
	Level          genconfig.Level
	LevelGuide     string
	Language       string
	ChapterContext string
	SourceText     string
}

type prompt struct {
	spec   promptSpec
	schema map[string]any
	system *template.Template
	user   *template.Template
}

const baseSystem = `You create {{.Task}} for a learner studying their own course material.
Write in the language "{{.Language}}".
Target level: {{.Level}}. {{.LevelGuide}}
Each item must test one idea from the source text. Fill "concept" with the idea tested and "explanation" with a short justification drawn from the text.
Never ask about the document itself: page numbers, chapter numbering, authors, editions, exam dates, deadlines or grading.`

const baseUser = `Chapter: {{.ChapterContext}}

Produce exactly {{.Count}} items from the source text below.

<source>
{{.SourceText}}
</source>`

var levelGuides = map[genconfig.Level]string{
	genconfig.LevelBeginner:     "Focus on definitions and key facts stated explicitly.",
	genconfig.LevelIntermediate: "Mix recall with questions on relationships between ideas.",
	genconfig.LevelAdvanced:     "Favour application, comparison and reasoning about mechanisms.",
}

func schemaOf[T any]() func() (map[string]any, error) {
	return func() (map[string]any, error) { return llm.Reflect(&envelope[T]{}) }
}

var promptSpecs = []promptSpec{
	{
		Type:       items.TypeMCQ,
		SchemaName: "mcq_items",
		Schema:     schemaOf[items.MCQ](),
		Task:       "multiple-choice questions with 4 options and exactly one correct option (correct_index is zero-based)",
	},
	{
		Type:       items.TypeTrueFalse,
		SchemaName: "true_false_items",
		Schema:     schemaOf[items.TrueFalse](),
		Task:       "true/false statements, roughly half of them false",
	},
	{
		Type:       items.TypeFillBlank,
		SchemaName: "fill_blank_items",
		Schema:     schemaOf[items.FillBlank](),
		Task:       "fill-in-the-blank sentences where the missing key term is written as ___",
	},
	{
		Type:       items.TypeBasic,
		SchemaName: "basic_flashcards",
		Schema:     schemaOf[items.BasicCard](),
		Task:       "question/answer flashcards with a short front and a precise back",
	},
	{
		Type:       items.TypeCloze,
		SchemaName: "cloze_flashcards",
		Schema:     schemaOf[items.ClozeCard](),
		Task:       "cloze flashcards where key terms are hidden as {{c1::term}}",
	},
	{
		Type:       items.TypeReversed,
		SchemaName: "reversed_flashcards",
		Schema:     schemaOf[items.ReversedCard](),
		Task:       "term/definition flashcards that can be studied in both directions",
	},
}

func compilePrompt(s promptSpec) (*prompt, error) {
	if s.Schema == nil || strings.TrimSpace(s.SchemaName) == "" {
		return nil, fmt.Errorf("prompt %s: missing schema", s.Type)
	}
	schema, err := s.Schema()
	if err != nil {
		return nil, fmt.Errorf("prompt %s schema: %w", s.Type, err)
	}
	system := s.System
	if system == "" {
		system = baseSystem
	}
	user := s.User
	if user == "" {
		user = baseUser
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(system)
	if err != nil {
		return nil, fmt.Errorf("prompt %s system template: %w", s.Type, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("prompt %s user template: %w", s.Type, err)
	}
	return &prompt{spec: s, schema: schema, system: sysT, user: userT}, nil
}

func compilePrompts() (map[items.Type]*prompt, error) {
	out := make(map[items.Type]*prompt, len(promptSpecs))
	for _, s := range promptSpecs {
		p, err := compilePrompt(s)
		if err != nil {
			return nil, err
		}
		out[s.Type] = p
	}
	return out, nil
}

func (p *prompt) input(req Request) promptInput {
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "en"
	}
	return promptInput{
		Task:           p.spec.Task,
		Count:          req.Config.PerType,
		Level:          req.Config.Level,
		LevelGuide:     levelGuides[req.Config.Level],
		Language:       lang,
		ChapterContext: req.ChapterContext,
		SourceText:     req.SourceText,
	}
}

func render(t *template.Template, in promptInput) string {
	var b bytes.Buffer
	_ = t.Execute(&b, in)
	return strings.TrimSpace(b.String())
}

func (p *prompt) render(req Request) (system, user string) {
	in := p.input(req)
	return render(p.system, in), render(p.user, in)
}
