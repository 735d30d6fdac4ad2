package quiz_generate

import (
	"github.com/MartinPaviot/Nareo-sub004/internal/generation/orchestrator"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type Pipeline struct {
	log  *logger.Logger
	orch *orchestrator.Orchestrator
	emit services.SSEEmitter
}

// New builds the quiz_generate handler. emit may be nil when nobody listens
// on course channels.
func New(baseLog *logger.Logger, orch *orchestrator.Orchestrator, emit services.SSEEmitter) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", services.JobTypeQuizGenerate),
		orch: orch,
		emit: emit,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeQuizGenerate }
