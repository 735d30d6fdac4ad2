package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/generation/backend"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/validator"
	jobrt "github.com/MartinPaviot/Nareo-sub004/internal/jobs/runtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/jobs/pipeline/quiz_generate"
	"github.com/MartinPaviot/Nareo-sub004/internal/jobs/worker"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type Services struct {
	Emitter      services.SSEEmitter
	JobNotifier  services.JobNotifier
	JobService   services.JobService
	Generation   services.GenerationService
	Review       services.ReviewService
	Orchestrator *orchestrator.Orchestrator
	PollBridge   *realtime.PollBridge
	JobWorker    *worker.Worker
}

// emitterFor publishes through the bus when one is configured so that hub
// clients connected to any process receive worker events.
func emitterFor(log *logger.Logger, hub *realtime.SSEHub, clients Clients) services.SSEEmitter {
	if clients.SSEBus != nil {
		return &services.RedisEmitter{Bus: clients.SSEBus, Log: log.With("component", "RedisEmitter")}
	}
	return &services.HubEmitter{Hub: hub}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	gen, err := backend.NewLLMBackend(log, clients.Generator, backend.LLMOptions{
		TypeConcurrency: cfg.Generation.TypeConcurrency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init generation backend: %w", err)
	}
	orch := orchestrator.New(
		db, log,
		reposet.Course, reposet.Chapter, reposet.GeneratedItem,
		gen,
		validator.Load(log),
		orchestrator.Options{
			MinSourceChars:      cfg.Generation.MinSourceChars,
			SimilarityThreshold: cfg.Generation.SimilarityThreshold,
			RunTimeout:          cfg.Generation.RunTimeout,
			StaleAfter:          cfg.Generation.StaleAfter,
		},
	)

	emit := emitterFor(log, hub, clients)
	notifier := services.NewJobNotifier(emit)
	jobs := services.NewJobService(db, log, reposet.JobRun, notifier)
	generation := services.NewGenerationService(db, log, reposet.Course, reposet.GeneratedItem, reposet.JobRun, jobs, orch, emit)
	review := services.NewReviewService(db, log, reposet.Course, reposet.GeneratedItem, reposet.ReviewState)
	bridge := realtime.NewPollBridge(log, services.NewPollSource(reposet.Course, reposet.GeneratedItem, reposet.JobRun), realtime.PollConfig{
		Interval:    cfg.Stream.PollInterval,
		MaxDuration: cfg.Stream.MaxDuration,
	})

	registry := jobrt.NewRegistry()
	if err := registry.Register(quiz_generate.New(log, orch, emit)); err != nil {
		return Services{}, fmt.Errorf("register quiz_generate: %w", err)
	}
	wcfg := worker.DefaultConfig()
	if cfg.Worker.Concurrency > 0 {
		wcfg.Concurrency = cfg.Worker.Concurrency
	}
	jobWorker := worker.NewWorker(db, log, reposet.JobRun, registry, notifier, wcfg)

	return Services{
		Emitter:      emit,
		JobNotifier:  notifier,
		JobService:   jobs,
		Generation:   generation,
		Review:       review,
		Orchestrator: orch,
		PollBridge:   bridge,
		JobWorker:    jobWorker,
	}, nil
}
