package repos

import (
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/jobs"
	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/learning"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type CourseRepo = learning.CourseRepo
type ChapterRepo = learning.ChapterRepo
type GeneratedItemRepo = learning.GeneratedItemRepo
type ReviewStateRepo = learning.ReviewStateRepo
type ItemScope = learning.ItemScope

type JobRunRepo = jobs.JobRunRepo
type ClaimPolicy = jobs.ClaimPolicy

func NewCourseRepo(db *gorm.DB, log *logger.Logger) CourseRepo {
	return learning.NewCourseRepo(db, log)
}

func NewChapterRepo(db *gorm.DB, log *logger.Logger) ChapterRepo {
	return learning.NewChapterRepo(db, log)
}

func NewGeneratedItemRepo(db *gorm.DB, log *logger.Logger) GeneratedItemRepo {
	return learning.NewGeneratedItemRepo(db, log)
}

func NewReviewStateRepo(db *gorm.DB, log *logger.Logger) ReviewStateRepo {
	return learning.NewReviewStateRepo(db, log)
}

func NewJobRunRepo(db *gorm.DB, log *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, log)
}
