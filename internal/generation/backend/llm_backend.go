package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/items"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/apierr"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/llm"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

const DefaultTypeConcurrency = 4

type LLMOptions struct {
	// TypeConcurrency bounds the per-type calls in flight for one chapter.
	TypeConcurrency int
}

// LLMBackend issues one structured-output call per enabled item type.
type LLMBackend struct {
	log     *logger.Logger
	gen     llm.JSONGenerator
	prompts map[items.Type]*prompt
	limit   int
}

func NewLLMBackend(log *logger.Logger, gen llm.JSONGenerator, opts LLMOptions) (*LLMBackend, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator required")
	}
	prompts, err := compilePrompts()
	if err != nil {
		return nil, err
	}
	limit := opts.TypeConcurrency
	if limit <= 0 {
		limit = DefaultTypeConcurrency
	}
	return &LLMBackend{
		log:     log.With("component", "LLMBackend", "provider", gen.Name()),
		gen:     gen,
		prompts: prompts,
		limit:   limit,
	}, nil
}

func (b *LLMBackend) Generate(ctx context.Context, req Request, onBatch func(Batch) error) ([]Batch, error) {
	types := req.Config.Types
	if len(types) == 0 {
		return nil, apierr.Wrap(apierr.ErrBackend, errors.New("no item types enabled"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)

	var (
		mu       sync.Mutex
		cbMu     sync.Mutex
		batches  []Batch
		typeErrs []error
	)
	for _, t := range types {
		t := t
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			batch, err := b.generateType(gctx, req, t)
			if err != nil {
				mu.Lock()
				typeErrs = append(typeErrs, fmt.Errorf("%s: %w", t, err))
				mu.Unlock()
				return nil
			}
			if onBatch != nil {
				cbMu.Lock()
				cbErr := onBatch(batch)
				cbMu.Unlock()
				if cbErr != nil {
					return cbErr
				}
			}
			mu.Lock()
			batches = append(batches, batch)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batches, err
	}

	SortBatches(batches)
	joined := errors.Join(typeErrs...)
	if len(batches) == 0 {
		return nil, apierr.Wrap(apierr.ErrBackend, fmt.Errorf("every item type failed: %w", joined))
	}
	if joined != nil {
		b.log.Warn("some item types failed", "error", joined, "succeeded", len(batches), "failed", len(typeErrs))
	}
	return batches, nil
}

func (b *LLMBackend) generateType(ctx context.Context, req Request, t items.Type) (Batch, error) {
	p, ok := b.prompts[t]
	if !ok {
		return Batch{}, fmt.Errorf("no prompt for item type %q", t)
	}
	ctx, span := observability.StartSpan(ctx, "generation.backend.call",
		attribute.String("item.type", string(t)),
		attribute.String("provider", b.gen.Name()),
	)
	defer span.End()

	system, user := p.render(req)
	start := time.Now()
	obj, err := b.gen.GenerateJSON(ctx, system, user, p.spec.SchemaName, p.schema)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObserveGenerationCall(b.gen.Name(), string(t), status, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return Batch{}, err
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return Batch{}, fmt.Errorf("re-encode %s output: %w", t, err)
	}
	parsed, dropped, err := items.ParseEnvelope(t, raw)
	if err != nil {
		return Batch{}, err
	}
	if dropped > 0 {
		b.log.Debug("dropped invalid items", "type", t, "dropped", dropped, "kept", len(parsed))
	}
	span.SetAttributes(attribute.Int("items.kept", len(parsed)), attribute.Int("items.dropped", dropped))
	return Batch{Type: t, Items: parsed, Dropped: dropped}, nil
}
