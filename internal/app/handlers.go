package app

import (
	"gorm.io/gorm"

	httpH "github.com/MartinPaviot/Nareo-sub004/internal/http/handlers"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Realtime *httpH.RealtimeHandler
	Quiz     *httpH.QuizHandler
	Review   *httpH.ReviewHandler
	Job      *httpH.JobHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Realtime: httpH.NewRealtimeHandler(log, sseHub, services.Generation),
		Quiz:     httpH.NewQuizHandler(log, services.Generation, services.PollBridge),
		Review:   httpH.NewReviewHandler(log, services.Review),
		Job:      httpH.NewJobHandler(services.JobService),
	}
}
