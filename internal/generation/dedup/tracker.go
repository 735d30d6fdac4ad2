package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/normalization"
)

const DefaultThreshold = 0.70

// Tokens of at least this many runes match when they are one edit apart
// ("membrane"/"membranes").
const fuzzyTokenMinRunes = 5

// Fingerprint is the normalized form of one accepted item.
type Fingerprint struct {
	Text         string `json:"text"`
	ChapterIndex int    `json:"chapter_index"`
	tokens       []string
}

// Duplicate describes one rejected item.
type Duplicate struct {
	Text           string  `json:"text"`
	MatchedText    string  `json:"matched_text"`
	MatchedChapter int     `json:"matched_chapter"`
	Score          float64 `json:"score"`
}

type FilterResult struct {
	Filtered          []items.Item
	DuplicatesRemoved int
	Duplicates        []Duplicate
}

// Tracker accumulates the fingerprints of every item accepted during one
// generation run. It has a single writer and is not safe for concurrent use.
type Tracker struct {
	threshold float64
	corpus    []Fingerprint
}

// NewTracker returns an empty tracker. Thresholds outside (0, 1] fall back to
// DefaultThreshold.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold}
}

func (t *Tracker) Threshold() float64 { return t.threshold }

func (t *Tracker) Len() int { return len(t.corpus) }

// Fingerprints returns a copy of the corpus in acceptance order.
func (t *Tracker) Fingerprints() []Fingerprint {
	return append([]Fingerprint(nil), t.corpus...)
}

// Seed adds already-accepted texts without filtering them.
func (t *Tracker) Seed(texts []string, chapterIndex int) {
	for _, s := range texts {
		t.add(s, chapterIndex)
	}
}

// FilterQuestions drops every item whose display text is at least threshold
// similar to an accepted fingerprint, earlier items of the same batch
// included, and appends the survivors to the corpus.
func (t *Tracker) FilterQuestions(batch []items.Item, chapterIndex int) FilterResult {
	res := FilterResult{Filtered: make([]items.Item, 0, len(batch))}
	for _, it := range batch {
		if it == nil {
			continue
		}
		text := it.DisplayText()
		toks := normalization.Tokens(text)
		if dup, ok := t.match(text, toks); ok {
			res.DuplicatesRemoved++
			res.Duplicates = append(res.Duplicates, dup)
			continue
		}
		t.corpus = append(t.corpus, Fingerprint{
			Text:         strings.Join(toks, " "),
			ChapterIndex: chapterIndex,
			tokens:       toks,
		})
		res.Filtered = append(res.Filtered, it)
	}
	return res
}

func (t *Tracker) match(text string, toks []string) (Duplicate, bool) {
	for _, fp := range t.corpus {
		if score := overlap(toks, fp.tokens); score >= t.threshold {
			return Duplicate{Text: text, MatchedText: fp.Text, MatchedChapter: fp.ChapterIndex, Score: score}, true
		}
	}
	return Duplicate{}, false
}

func (t *Tracker) add(text string, chapterIndex int) {
	toks := normalization.Tokens(text)
	t.corpus = append(t.corpus, Fingerprint{Text: strings.Join(toks, " "), ChapterIndex: chapterIndex, tokens: toks})
}

// Similarity is the score FilterQuestions compares against the threshold:
// the share of distinct tokens two texts have in common, relative to the
// larger of the two token sets. Case, accents, punctuation and spacing are
// ignored.
func Similarity(a, b string) float64 {
	return overlap(normalization.Tokens(a), normalization.Tokens(b))
}

func overlap(a, b []string) float64 {
	ua, ub := lo.Uniq(a), lo.Uniq(b)
	if len(ua) == 0 && len(ub) == 0 {
		return 1
	}
	if len(ua) == 0 || len(ub) == 0 {
		return 0
	}

	used := make([]bool, len(ub))
	pending := make([]string, 0, len(ua))
	matched := 0
	for _, x := range ua {
		if j := lo.IndexOf(ub, x); j >= 0 {
			used[j] = true
			matched++
			continue
		}
		pending = append(pending, x)
	}
	for _, x := range pending {
		for j, y := range ub {
			if !used[j] && nearToken(x, y) {
				used[j] = true
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(max(len(ua), len(ub)))
}

func nearToken(x, y string) bool {
	if utf8.RuneCountInString(x) < fuzzyTokenMinRunes || utf8.RuneCountInString(y) < fuzzyTokenMinRunes {
		return false
	}
	return fuzzy.LevenshteinDistance(x, y) <= 1
}
