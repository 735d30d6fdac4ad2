package orchestrator

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

// accept runs one batch through validation and deduplication, then persists
// and streams the survivors one at a time.
func (o *Orchestrator) accept(r *run, ch *domain.Chapter, batch []items.Item, parseDropped int) {
	r.result.Dropped.Parse += parseDropped

	kept := make([]items.Item, 0, len(batch))
	for _, it := range batch {
		if it == nil {
			continue
		}
		c := o.validator.Classify(it.DisplayText())
		if c.IsAdministrative {
			r.result.Dropped.Administrative++
			r.log.Debug("dropped administrative item", "chapter_id", ch.ID, "reason", c.Reason, "keyword", c.MatchedKeyword)
			continue
		}
		kept = append(kept, it)
	}

	filtered := r.tracker.FilterQuestions(kept, r.chapter)
	r.result.Dropped.Duplicates += filtered.DuplicatesRemoved
	for _, d := range filtered.Duplicates {
		r.log.Debug("dropped duplicate item", "chapter_id", ch.ID, "score", d.Score, "matched_chapter", d.MatchedChapter)
	}

	for _, it := range filtered.Filtered {
		row, err := o.persist(r, ch, it)
		if err != nil {
			r.result.Dropped.Persist++
			r.log.Warn("persist item failed; skipping", "chapter_id", ch.ID, "type", it.Type(), "error", err)
			continue
		}
		r.generated++
		_ = r.sink.Emit(realtime.Item(row.Kind, row, r.existing+r.generated))
	}
}

// persist inserts one item with its concept link and bumps both counters in
// the same transaction, so a crash never leaves counts ahead of rows.
func (o *Orchestrator) persist(r *run, ch *domain.Chapter, it items.Item) (*domain.GeneratedItem, error) {
	pos, err := o.nextPosition(r, ch)
	if err != nil {
		return nil, err
	}
	chapterID := ch.ID
	row, err := items.ToRow(it, r.course.ID, &chapterID, pos)
	if err != nil {
		return nil, err
	}

	err = o.db.WithContext(r.ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: r.ctx, Tx: tx}
		if _, err := o.items.Create(dbc, []*domain.GeneratedItem{row}); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		if concept := it.Concept(); concept != "" {
			if err := o.items.CreateConcepts(dbc, []*domain.ItemConcept{{
				ItemID:    row.ID,
				CourseID:  r.course.ID,
				ChapterID: &chapterID,
				Concept:   concept,
			}}); err != nil {
				return fmt.Errorf("insert concept link: %w", err)
			}
		}
		if err := o.courses.IncrementGenerated(dbc, r.course.ID, 1); err != nil {
			return fmt.Errorf("increment course: %w", err)
		}
		if err := o.chapters.IncrementItems(dbc, ch.ID, 1); err != nil {
			return fmt.Errorf("increment chapter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.positions[ch.ID] = pos + 1
	return row, nil
}

func (o *Orchestrator) nextPosition(r *run, ch *domain.Chapter) (int, error) {
	if pos, ok := r.positions[ch.ID]; ok {
		return pos, nil
	}
	chapterID := ch.ID
	n, err := o.items.Count(dbctx.Context{Ctx: r.ctx}, repos.ItemScope{CourseID: r.course.ID, ChapterID: &chapterID})
	if err != nil {
		return 0, fmt.Errorf("count chapter items: %w", err)
	}
	r.positions[ch.ID] = int(n)
	return int(n), nil
}

