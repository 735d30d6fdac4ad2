package items

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
)

// ToRow maps an item onto its generated_item row. The full variant is kept in
// Payload; Prompt/Answer/Options are the flattened fields list views read.
func ToRow(it Item, courseID uuid.UUID, chapterID *uuid.UUID, position int) (*domain.GeneratedItem, error) {
	payload, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", it.Type(), err)
	}
	row := &domain.GeneratedItem{
		CourseID:  courseID,
		ChapterID: chapterID,
		Kind:      it.Kind(),
		Type:      string(it.Type()),
		Payload:   datatypes.JSON(payload),
		Position:  position,
	}
	switch v := it.(type) {
	case *MCQ:
		opts, err := json.Marshal(v.Options)
		if err != nil {
			return nil, err
		}
		row.Prompt = v.Question
		row.Answer = v.CorrectOption()
		row.Options = datatypes.JSON(opts)
		row.Explanation = v.Explanation
	case *TrueFalse:
		row.Prompt = v.Statement
		row.Answer = strconv.FormatBool(v.Answer)
		row.Explanation = v.Explanation
	case *FillBlank:
		row.Prompt = v.Sentence
		row.Answer = v.Answer
		row.Explanation = v.Explanation
	case *BasicCard:
		row.Prompt = v.Front
		row.Answer = v.Back
	case *ClozeCard:
		row.Prompt = v.Text
		row.Answer = strings.Join(v.Deletions(), "; ")
	case *ReversedCard:
		row.Prompt = v.Front
		row.Answer = v.Back
	default:
		return nil, fmt.Errorf("%w: unsupported variant %T", ErrInvalidItem, it)
	}
	return row, nil
}

// FromRow rebuilds the variant stored in a row.
func FromRow(row *domain.GeneratedItem) (Item, error) {
	if row == nil {
		return nil, fmt.Errorf("%w: nil row", ErrInvalidItem)
	}
	t, ok := ParseType(row.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidItem, row.Type)
	}
	return Parse(t, json.RawMessage(row.Payload))
}
