package app

import (
	"gorm.io/gorm"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/logger"
)

type Repos struct {
	Course        repos.CourseRepo
	Chapter       repos.ChapterRepo
	GeneratedItem repos.GeneratedItemRepo
	ReviewState   repos.ReviewStateRepo
	JobRun        repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Course:        repos.NewCourseRepo(db, log),
		Chapter:       repos.NewChapterRepo(db, log),
		GeneratedItem: repos.NewGeneratedItemRepo(db, log),
		ReviewState:   repos.NewReviewStateRepo(db, log),
		JobRun:        repos.NewJobRunRepo(db, log),
	}
}
