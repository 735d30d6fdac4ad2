package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/MartinPaviot/Nareo-sub004/internal/http/response"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := pathUUID(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByIDForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/courses/:id/quiz/job
func (h *JobHandler) LatestForCourse(c *gin.Context) {
	courseID, ok := pathUUID(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	job, err := h.jobs.GetLatestForEntityForRequestUser(dbctx.Context{Ctx: c.Request.Context()}, services.EntityTypeCourse, courseID, services.JobTypeQuizGenerate)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
