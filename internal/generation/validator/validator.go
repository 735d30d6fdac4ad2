package validator

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MartinPaviot/Nareo-sub004/internal/normalization"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

const lexiconEnv = "VALIDATOR_LEXICON_YAML"

//go:embed lexicon.yaml
var lexiconFS embed.FS

// Classification is the verdict on one item's displayed text.
type Classification struct {
	IsAdministrative bool   `json:"is_administrative"`
	Reason           string `json:"reason,omitempty"`
	MatchedKeyword   string `json:"matched_keyword,omitempty"`
}

type yamlLexicon struct {
	Version int        `yaml:"version"`
	Rules   []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	Reason   string   `yaml:"reason"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

type rule struct {
	reason   string
	keywords []string
	patterns []*regexp.Regexp
}

// Validator flags administrative items. It is immutable after construction
// and safe for concurrent use.
type Validator struct {
	rules []rule
}

// Parse builds a Validator from lexicon YAML.
func Parse(data []byte) (*Validator, error) {
	var lex yamlLexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(lex.Rules) == 0 {
		return nil, errors.New("lexicon has no rules")
	}
	v := &Validator{rules: make([]rule, 0, len(lex.Rules))}
	for i, r := range lex.Rules {
		reason := strings.TrimSpace(r.Reason)
		if reason == "" {
			return nil, fmt.Errorf("rule %d: reason is required", i)
		}
		compiled := rule{reason: reason}
		for _, kw := range r.Keywords {
			if k := normalization.Text(kw); k != "" {
				compiled.keywords = append(compiled.keywords, k)
			}
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: pattern %q: %w", reason, p, err)
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		v.rules = append(v.rules, compiled)
	}
	return v, nil
}

// Load reads the lexicon named by VALIDATOR_LEXICON_YAML, falling back to
// the embedded one when the variable is unset or the file is unusable.
func Load(log *logger.Logger) *Validator {
	if path := strings.TrimSpace(os.Getenv(lexiconEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var v *Validator
			if v, err = Parse(data); err == nil {
				return v
			}
		}
		if log != nil {
			log.Warn("validator: lexicon override unusable; using embedded lexicon", "path", path, "error", err)
		}
	}
	return Default()
}

var (
	defaultOnce sync.Once
	defaultVal  *Validator
)

// Default returns the Validator built from the embedded lexicon.
func Default() *Validator {
	defaultOnce.Do(func() {
		data, err := lexiconFS.ReadFile("lexicon.yaml")
		if err == nil {
			defaultVal, err = Parse(data)
		}
		if err != nil {
			panic(fmt.Sprintf("validator: embedded lexicon: %v", err))
		}
	})
	return defaultVal
}

// Classify uses the embedded lexicon.
func Classify(text string) Classification {
	return Default().Classify(text)
}

// Classify never fails; text without a match is substantive.
func (v *Validator) Classify(text string) Classification {
	if v == nil || strings.TrimSpace(text) == "" {
		return Classification{}
	}
	words := " " + normalization.Text(text) + " "
	folded := normalization.Fold(text)
	for _, r := range v.rules {
		for _, kw := range r.keywords {
			if strings.Contains(words, " "+kw+" ") {
				return Classification{IsAdministrative: true, Reason: r.reason, MatchedKeyword: kw}
			}
		}
		for _, re := range r.patterns {
			if m := re.FindString(folded); m != "" {
				return Classification{IsAdministrative: true, Reason: r.reason, MatchedKeyword: strings.TrimSpace(m)}
			}
		}
	}
	return Classification{}
}
