package srs

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3
	// EasyBonus multiplies the interval a "good" answer would have earned.
	EasyBonus = 1.3
)

var ErrInvalidRating = errors.New("invalid rating")

type Rating string

const (
	RatingHard Rating = "hard"
	RatingGood Rating = "good"
	RatingEasy Rating = "easy"
)

// ParseRating accepts hard/good/easy, their 1/2/3 button numbers, and
// "again" as an alias of hard.
func ParseRating(s string) (Rating, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard", "again", "1":
		return RatingHard, nil
	case "good", "2":
		return RatingGood, nil
	case "easy", "3":
		return RatingEasy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// easeDelta is the change a rating applies to the ease factor. Hard keeps the
// SM-2 penalty for a grade-3 recall; good and easy both raise ease, easy more.
func (r Rating) easeDelta() float64 {
	switch r {
	case RatingEasy:
		return 0.15
	case RatingGood:
		return 0.05
	default:
		return -0.14
	}
}

func (r Rating) correct() bool { return r == RatingGood || r == RatingEasy }

type Mastery string

const (
	MasteryNew      Mastery = "new"
	MasteryLearning Mastery = "learning"
	MasteryYoung    Mastery = "young"
	MasteryMature   Mastery = "mature"
)

// MasteryFor derives the tier from the current interval.
func MasteryFor(intervalDays int) Mastery {
	switch {
	case intervalDays <= 0:
		return MasteryNew
	case intervalDays < 7:
		return MasteryLearning
	case intervalDays < 21:
		return MasteryYoung
	default:
		return MasteryMature
	}
}

// State is the schedule of one card for one learner.
type State struct {
	EaseFactor     float64
	IntervalDays   int
	NextReviewAt   time.Time
	LastReviewedAt time.Time
	ReviewCount    int
	CorrectCount   int
	IncorrectCount int
	Mastery        Mastery
}

// NextSchedule applies one review. A nil prev is a card never reviewed.
func NextSchedule(prev *State, rating Rating, now time.Time) State {
	cur := State{EaseFactor: InitialEaseFactor}
	if prev != nil {
		cur = *prev
		if cur.EaseFactor < MinEaseFactor {
			cur.EaseFactor = MinEaseFactor
		}
		if cur.IntervalDays < 0 {
			cur.IntervalDays = 0
		}
	}

	ease := cur.EaseFactor + rating.easeDelta()
	ease = math.Max(MinEaseFactor, math.Round(ease*100)/100)

	var interval int
	switch rating {
	case RatingGood, RatingEasy:
		switch cur.IntervalDays {
		case 0:
			interval = 1
		case 1:
			interval = 6
		default:
			interval = int(math.Ceil(float64(cur.IntervalDays) * ease))
		}
		if rating == RatingEasy {
			interval = int(math.Ceil(float64(interval) * EasyBonus))
		}
	default:
		interval = 1
	}

	next := State{
		EaseFactor:     ease,
		IntervalDays:   interval,
		NextReviewAt:   now.AddDate(0, 0, interval),
		LastReviewedAt: now,
		ReviewCount:    cur.ReviewCount + 1,
		CorrectCount:   cur.CorrectCount,
		IncorrectCount: cur.IncorrectCount,
		Mastery:        MasteryFor(interval),
	}
	if rating.correct() {
		next.CorrectCount++
	} else {
		next.IncorrectCount++
	}
	return next
}
