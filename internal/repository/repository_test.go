package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gradehouse/pkg/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SubmissionRecord{},
		&models.RubricRecord{},
		&models.ResultRecord{},
	))
	return db
}

func TestSubmissionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository(testDB(t))

	sub := &models.Submission{
		ID:           "sub-1",
		Username:     "alice",
		AssignmentID: "hw1",
		Language:     models.LangPython,
		Files: map[string]string{
			"main.py": "print('hi')",
			"util.py": "x = 1",
		},
	}
	require.NoError(t, repo.Create(ctx, sub))

	got, status, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, status)
	assert.Equal(t, sub.Files, got.Files)
	assert.Equal(t, models.LangPython, got.Language)

	require.NoError(t, repo.UpdateStatus(ctx, "sub-1", models.StatusGraded))
	_, status, err = repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGraded, status)
}

func TestSubmissionNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository(testDB(t))

	_, _, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", models.StatusGraded), ErrNotFound)
}

func TestSubmissionListForUser(t *testing.T) {
	ctx := context.Background()
	repo := NewSubmissionRepository(testDB(t))

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, repo.Create(ctx, &models.Submission{
			ID: id, Username: "alice", AssignmentID: "hw1",
			Language: models.LangPython,
			Files:    map[string]string{"main.py": "x"},
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.Submission{
		ID: "s3", Username: "bob", AssignmentID: "hw1",
		Language: models.LangPython,
		Files:    map[string]string{"main.py": "x"},
	}))

	recs, err := repo.ListForUser(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRubricUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewRubricRepository(testDB(t))

	require.NoError(t, repo.Upsert(ctx, &models.RubricRecord{
		ID:           "r1",
		AssignmentID: "hw1",
		TemplateName: "io-basic",
		Config:       `{"base":{"weight":100}}`,
		Format:       "json",
	}))

	// Second upsert for the same assignment replaces the config.
	require.NoError(t, repo.Upsert(ctx, &models.RubricRecord{
		ID:           "r2",
		AssignmentID: "hw1",
		TemplateName: "io-basic",
		Config:       `{"base":{"weight":50}}`,
		Format:       "json",
	}))

	got, err := repo.GetByAssignment(ctx, "hw1")
	require.NoError(t, err)
	assert.Contains(t, got.Config, `"weight":50`)

	_, err = repo.GetByAssignment(ctx, "hw2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultLatest(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewResultRepository(db)

	require.NoError(t, repo.Create(ctx, &models.ResultRecord{
		SubmissionID: "sub-1", FinalScore: 40,
	}))
	// Backdate the first record so ordering is deterministic.
	db.Model(&models.ResultRecord{}).
		Where("final_score = ?", 40.0).
		Update("created_at", time.Now().Add(-time.Hour))

	require.NoError(t, repo.Create(ctx, &models.ResultRecord{
		SubmissionID: "sub-1", FinalScore: 85,
	}))

	got, err := repo.GetLatest(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.FinalScore)

	_, err = repo.GetLatest(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusCacheLocalFallback(t *testing.T) {
	ctx := context.Background()
	cache := NewStatusCache(nil, time.Minute)

	_, ok := cache.Get(ctx, "sub-1")
	assert.False(t, ok)

	cache.Set(ctx, "sub-1", models.StatusGrading)
	status, ok := cache.Get(ctx, "sub-1")
	assert.True(t, ok)
	assert.Equal(t, models.StatusGrading, status)

	cache.Delete(ctx, "sub-1")
	_, ok = cache.Get(ctx, "sub-1")
	assert.False(t, ok)
}

func TestStatusCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewStatusCache(nil, time.Millisecond)

	cache.Set(ctx, "sub-1", models.StatusQueued)
	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get(ctx, "sub-1")
	assert.False(t, ok)
}
