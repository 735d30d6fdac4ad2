package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MartinPaviot/Nareo-sub004/internal/http/response"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
	"github.com/MartinPaviot/Nareo-sub004/internal/services"
)

type ReviewHandler struct {
	log     *logger.Logger
	reviews services.ReviewService
}

func NewReviewHandler(log *logger.Logger, reviews services.ReviewService) *ReviewHandler {
	return &ReviewHandler{log: log.With("handler", "ReviewHandler"), reviews: reviews}
}

type reviewRequest struct {
	Rating string `json:"rating" binding:"required"`
}

// POST /api/flashcards/:id/review
func (h *ReviewHandler) Submit(c *gin.Context) {
	flashcardID, ok := pathUUID(c, "id", "invalid_flashcard_id")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	st, err := h.reviews.Submit(c.Request.Context(), requestUserID(c), flashcardID, req.Rating)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"review": st})
}

// GET /api/reviews/due?course_id=&limit=
func (h *ReviewHandler) Due(c *gin.Context) {
	courseID, err := queryUUID(c, "course_id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	due, err := h.reviews.Due(c.Request.Context(), requestUserID(c), courseID, limit)
	if err != nil {
		h.log.Error("list due reviews failed", "error", err)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reviews": due})
}
