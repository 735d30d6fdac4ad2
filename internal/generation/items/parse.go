package items

import (
	"encoding/json"
	"fmt"
)

// New returns an empty value of the variant named by t.
func New(t Type) (Item, error) {
	switch t {
	case TypeMCQ:
		return &MCQ{}, nil
	case TypeTrueFalse:
		return &TrueFalse{}, nil
	case TypeFillBlank:
		return &FillBlank{}, nil
	case TypeBasic:
		return &BasicCard{}, nil
	case TypeCloze:
		return &ClozeCard{}, nil
	case TypeReversed:
		return &ReversedCard{}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidItem, t)
}

// Parse decodes and validates one raw item of type t.
func Parse(t Type, raw json.RawMessage) (Item, error) {
	it, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, it); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidItem, t, err)
	}
	if err := it.validate(); err != nil {
		return nil, err
	}
	return it, nil
}

// Envelope is the structured-output shape requested from generators.
type Envelope struct {
	Items []json.RawMessage `json:"items"`
}

// ParseEnvelope decodes a generator response into valid items. Items that
// fail validation are skipped and counted in dropped.
func ParseEnvelope(t Type, data []byte) (out []Item, dropped int, err error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, 0, fmt.Errorf("decode %s envelope: %w", t, err)
	}
	for _, raw := range env.Items {
		it, perr := Parse(t, raw)
		if perr != nil {
			dropped++
			continue
		}
		out = append(out, it)
	}
	return out, dropped, nil
}
