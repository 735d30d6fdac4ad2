package items

import (
	"strings"

	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
)

// Type names one item variant. The string form is what is stored in
// generated_item.type and sent to clients.
type Type string

const (
	TypeMCQ       Type = "mcq"
	TypeTrueFalse Type = "true_false"
	TypeFillBlank Type = "fill_blank"
	TypeBasic     Type = "basic"
	TypeCloze     Type = "cloze"
	TypeReversed  Type = "reversed"
)

// QuestionTypes and FlashcardTypes are in canonical generation order.
var (
	QuestionTypes  = []Type{TypeMCQ, TypeTrueFalse, TypeFillBlank}
	FlashcardTypes = []Type{TypeBasic, TypeCloze, TypeReversed}
	AllTypes       = append(append([]Type{}, QuestionTypes...), FlashcardTypes...)
)

func (t Type) Kind() string {
	switch t {
	case TypeBasic, TypeCloze, TypeReversed:
		return domain.ItemKindFlashcard
	default:
		return domain.ItemKindQuestion
	}
}

// ParseType accepts the canonical names plus a few spellings seen in client
// payloads ("truefalse", "fill-in-the-blank", ...).
func ParseType(s string) (Type, bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer("-", "_", " ", "_").Replace(k)
	switch k {
	case "mcq", "multiple_choice", "qcm":
		return TypeMCQ, true
	case "true_false", "truefalse", "vrai_faux", "tf":
		return TypeTrueFalse, true
	case "fill_blank", "fill_in_the_blank", "fillblank", "texte_a_trous":
		return TypeFillBlank, true
	case "basic", "flashcard":
		return TypeBasic, true
	case "cloze":
		return TypeCloze, true
	case "reversed", "reverse":
		return TypeReversed, true
	}
	return "", false
}

// Order returns the position of t in AllTypes, or len(AllTypes).
func Order(t Type) int {
	for i, v := range AllTypes {
		if v == t {
			return i
		}
	}
	return len(AllTypes)
}
