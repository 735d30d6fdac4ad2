package learning

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/MartinPaviot/Nareo-sub004/internal/data/repos/testutil"
	types "github.com/MartinPaviot/Nareo-sub004/internal/domain"
	"github.com/MartinPaviot/Nareo-sub004/internal/platform/dbctx"
)

func TestGeneratedItemRepoScopeAndDelete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	items := NewGeneratedItemRepo(db, log)
	reviews := NewReviewStateRepo(db, log)

	course := testutil.SeedCourse(t, ctx, tx, uuid.New())
	chA := testutil.SeedChapter(t, ctx, tx, course.ID, 0, "a")
	chB := testutil.SeedChapter(t, ctx, tx, course.ID, 1, "b")

	a1 := testutil.SeedItem(t, ctx, tx, course.ID, &chA.ID, types.ItemKindQuestion, "mcq", "What does ATP synthase do?")
	testutil.SeedItem(t, ctx, tx, course.ID, &chA.ID, types.ItemKindFlashcard, "basic", "ATP")
	b1 := testutil.SeedItem(t, ctx, tx, course.ID, &chB.ID, types.ItemKindQuestion, "true_false", "Ribosomes make lipids.")
	testutil.SeedItem(t, ctx, tx, course.ID, nil, types.ItemKindFlashcard, "basic", "Course-level card")

	require.NoError(t, items.CreateConcepts(dbc, []*types.ItemConcept{
		{ItemID: a1.ID, CourseID: course.ID, ChapterID: &chA.ID, Concept: "atp synthase"},
	}))
	require.NoError(t, reviews.Upsert(dbc, &types.ReviewState{
		UserID: uuid.New(), ItemID: a1.ID, CourseID: course.ID, EaseFactor: 2.5, NextReviewAt: time.Now(), Mastery: "new",
	}))

	n, err := items.Count(dbc, ItemScope{CourseID: course.ID})
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	n, err = items.Count(dbc, ItemScope{CourseID: course.ID, Kind: types.ItemKindQuestion})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	deleted, err := items.DeleteScope(dbc, ItemScope{CourseID: course.ID, ChapterID: &chA.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	left, err := items.List(dbc, ItemScope{CourseID: course.ID})
	require.NoError(t, err)
	require.Len(t, left, 2)
	ids := []uuid.UUID{left[0].ID, left[1].ID}
	require.Contains(t, ids, b1.ID)

	var links int64
	require.NoError(t, tx.Model(&types.ItemConcept{}).Where("item_id = ?", a1.ID).Count(&links).Error)
	require.Zero(t, links)
	var states int64
	require.NoError(t, tx.Model(&types.ReviewState{}).Where("item_id = ?", a1.ID).Count(&states).Error)
	require.Zero(t, states)
}

func TestReviewStateRepoUpsertAndDue(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewReviewStateRepo(db, testutil.Logger(t))

	userID := uuid.New()
	courseID := uuid.New()
	itemID := uuid.New()
	now := time.Now()

	st := &types.ReviewState{UserID: userID, ItemID: itemID, CourseID: courseID, EaseFactor: 2.5, IntervalDays: 1, NextReviewAt: now.Add(-time.Hour), Mastery: "learning", ReviewCount: 1}
	require.NoError(t, repo.Upsert(dbc, st))

	st.IntervalDays = 6
	st.ReviewCount = 2
	require.NoError(t, repo.Upsert(dbc, st))

	got, err := repo.GetByUserItem(dbc, userID, itemID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 6, got.IntervalDays)
	require.Equal(t, 2, got.ReviewCount)

	due, err := repo.ListDue(dbc, userID, &courseID, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = repo.ListDue(dbc, userID, nil, now.Add(-2*time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}
