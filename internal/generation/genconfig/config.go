// Package genconfig normalizes client-supplied generation settings. Unknown
// or invalid values fall back to defaults; normalization never fails.
package genconfig

import (
	"strings"

	"github.com/samber/lo"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/normalization"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

type Count string

const (
	CountFew    Count = "few"
	CountNormal Count = "normal"
	CountMany   Count = "many"
)

var perTypeByCount = map[Count]int{
	CountFew:    3,
	CountNormal: 5,
	CountMany:   8,
}

// Raw is the configuration object accepted on the wire.
type Raw struct {
	Level  string `json:"level,omitempty"`
	Niveau string `json:"niveau,omitempty"`
	Count  string `json:"count,omitempty"`

	MCQ        *bool `json:"mcq,omitempty"`
	TrueFalse  *bool `json:"true_false,omitempty"`
	FillBlank  *bool `json:"fill_blank,omitempty"`
	Flashcards *bool `json:"flashcards,omitempty"`
	Basic      *bool `json:"basic,omitempty"`
	Cloze      *bool `json:"cloze,omitempty"`
	Reversed   *bool `json:"reversed,omitempty"`

	// Types, when present, replaces the per-type flags.
	Types []string `json:"types,omitempty"`
}

// Config is the normalized form stored on the course and handed to backends.
type Config struct {
	Level   Level        `json:"level"`
	Count   Count        `json:"count"`
	PerType int          `json:"per_type"`
	Types   []items.Type `json:"types"`
}

func Default() Config {
	return Config{
		Level:   LevelIntermediate,
		Count:   CountNormal,
		PerType: perTypeByCount[CountNormal],
		Types:   append([]items.Type{}, items.QuestionTypes...),
	}
}

// ParseLevel maps a level label, including French labels, to a Level.
func ParseLevel(s string) (Level, bool) {
	switch normalization.Text(s) {
	case "beginner", "easy", "debutant", "facile", "novice":
		return LevelBeginner, true
	case "intermediate", "medium", "intermediaire", "moyen":
		return LevelIntermediate, true
	case "advanced", "hard", "avance", "difficile", "expert":
		return LevelAdvanced, true
	}
	return "", false
}

func ParseCount(s string) (Count, bool) {
	switch normalization.Text(s) {
	case "few", "peu", "low":
		return CountFew, true
	case "normal", "medium", "moyen":
		return CountNormal, true
	case "many", "beaucoup", "high":
		return CountMany, true
	}
	return "", false
}

func Normalize(raw Raw) Config {
	cfg := Default()

	levelLabel := raw.Level
	if strings.TrimSpace(levelLabel) == "" {
		levelLabel = raw.Niveau
	}
	if lvl, ok := ParseLevel(levelLabel); ok {
		cfg.Level = lvl
	}
	if c, ok := ParseCount(raw.Count); ok {
		cfg.Count = c
		cfg.PerType = perTypeByCount[c]
	}

	var types []items.Type
	if len(raw.Types) > 0 {
		types = lo.FilterMap(raw.Types, func(s string, _ int) (items.Type, bool) {
			return items.ParseType(s)
		})
	} else {
		types = flagTypes(raw)
	}
	types = lo.Uniq(types)
	if len(types) > 0 {
		cfg.Types = sortTypes(types)
	}
	return cfg
}

func flagTypes(raw Raw) []items.Type {
	enabled := map[items.Type]bool{}
	for _, t := range items.QuestionTypes {
		enabled[t] = true
	}
	set := func(t items.Type, v *bool) {
		if v != nil {
			enabled[t] = *v
		}
	}
	if raw.Flashcards != nil {
		for _, t := range items.FlashcardTypes {
			enabled[t] = *raw.Flashcards
		}
	}
	set(items.TypeMCQ, raw.MCQ)
	set(items.TypeTrueFalse, raw.TrueFalse)
	set(items.TypeFillBlank, raw.FillBlank)
	set(items.TypeBasic, raw.Basic)
	set(items.TypeCloze, raw.Cloze)
	set(items.TypeReversed, raw.Reversed)
	return lo.Filter(items.AllTypes, func(t items.Type, _ int) bool { return enabled[t] })
}

func sortTypes(types []items.Type) []items.Type {
	out := make([]items.Type, 0, len(types))
	for _, t := range items.AllTypes {
		if lo.Contains(types, t) {
			out = append(out, t)
		}
	}
	return out
}

func (c Config) Enabled(t items.Type) bool { return lo.Contains(c.Types, t) }

// TotalPerChapter is the number of items requested for one chapter.
func (c Config) TotalPerChapter() int { return c.PerType * len(c.Types) }
