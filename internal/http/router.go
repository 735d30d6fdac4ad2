package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/MartinPaviot/Nareo-sub004/internal/http/handlers"
	httpMW "github.com/MartinPaviot/Nareo-sub004/internal/http/middleware"
	"github.com/MartinPaviot/Nareo-sub004/internal/observability"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	QuizHandler     *httpH.QuizHandler
	ReviewHandler   *httpH.ReviewHandler
	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/api")
	protected.Use(httpMW.RequireUser())
	{
		// Realtime (SSE hub)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
			protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
			protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
		}

		// Quiz generation
		if cfg.QuizHandler != nil {
			protected.POST("/courses/:id/quiz/generate", cfg.QuizHandler.Generate)
			protected.GET("/courses/:id/quiz/stream", cfg.QuizHandler.Stream)
			protected.GET("/courses/:id/quiz/status", cfg.QuizHandler.Status)
			protected.GET("/courses/:id/items", cfg.QuizHandler.Items)
		}

		// Review
		if cfg.ReviewHandler != nil {
			protected.POST("/flashcards/:id/review", cfg.ReviewHandler.Submit)
			protected.GET("/reviews/due", cfg.ReviewHandler.Due)
		}

		// Job
		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			protected.GET("/courses/:id/quiz/job", cfg.JobHandler.LatestForCourse)
		}
	}

	return r
}
