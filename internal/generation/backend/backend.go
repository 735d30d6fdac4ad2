// Package backend defines how chapter text is turned into candidate items.
package backend

import (
	"context"
	"sort"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/genconfig"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
)

type Request struct {
	// ChapterContext locates the chapter for the model, e.g. "Cell biology > Mitochondria".
	ChapterContext string
	SourceText     string
	Language       string
	Config         genconfig.Config
}

// Batch is the output of one item type for one chapter. Dropped counts raw
// items that failed variant validation.
type Batch struct {
	Type    items.Type
	Items   []items.Item
	Dropped int
}

// Backend generates the items of one chapter.
//
// With onBatch nil, Generate returns every batch once all types are done.
// Otherwise onBatch is invoked once per completed batch, never concurrently,
// and an onBatch error aborts the remaining types. Generate fails only when
// no type produced a batch.
type Backend interface {
	Generate(ctx context.Context, req Request, onBatch func(Batch) error) ([]Batch, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, req Request, onBatch func(Batch) error) ([]Batch, error)

func (f Func) Generate(ctx context.Context, req Request, onBatch func(Batch) error) ([]Batch, error) {
	return f(ctx, req, onBatch)
}

// SortBatches orders batches by canonical type order.
func SortBatches(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return items.Order(batches[i].Type) < items.Order(batches[j].Type)
	})
}

// Flatten concatenates the items of batches.
func Flatten(batches []Batch) []items.Item {
	var out []items.Item
	for _, b := range batches {
		out = append(out, b.Items...)
	}
	return out
}
