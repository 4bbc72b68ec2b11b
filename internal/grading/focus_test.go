package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradehouse/internal/criteria"
)

func TestFocusRanksByImpact(t *testing.T) {
	cfg := &criteria.Config{
		Base: &criteria.CategoryConfig{
			Weight: 100,
			Subjects: []criteria.SubjectConfig{
				{SubjectName: "big", Weight: 60, Tests: []criteria.TestConfig{{Name: "t_fail"}}},
				{SubjectName: "small", Weight: 40, Tests: []criteria.TestConfig{{Name: "t_half"}}},
			},
		},
	}
	tree := buildTree(t, cfg)
	grader := NewGrader(newFakeTemplate(), nil)

	result, err := grader.Grade(context.Background(), tree, testSubmission())
	require.NoError(t, err)

	focus := BuildFocus(result)
	require.Len(t, focus.Base, 2)

	// t_fail: (100-0) * 0.6 = 60 lost; t_half: (100-50) * 0.4 = 20.
	assert.Equal(t, "t_fail", focus.Base[0].TestName)
	assert.InDelta(t, 60.0, focus.Base[0].Impact, 1e-9)
	assert.Equal(t, "t_half", focus.Base[1].TestName)
	assert.InDelta(t, 20.0, focus.Base[1].Impact, 1e-9)
	assert.Equal(t, "big", focus.Base[0].SubjectPath)
}

func TestFocusOmitsPerfectTests(t *testing.T) {
	tree := buildTree(t, baseTwoSubjects())
	grader := NewGrader(newFakeTemplate(), nil)

	result, err := grader.Grade(context.Background(), tree, testSubmission())
	require.NoError(t, err)

	focus := BuildFocus(result)
	require.Len(t, focus.Base, 1)
	assert.Equal(t, "t_fail", focus.Base[0].TestName)
}

func TestFocusCoversAllCategories(t *testing.T) {
	cfg := baseTwoSubjects()
	cfg.Bonus = &criteria.CategoryConfig{
		Weight: 20,
		Tests:  []criteria.TestConfig{{Name: "t_half"}},
	}
	cfg.Penalty = &criteria.CategoryConfig{
		Weight: 30,
		Tests:  []criteria.TestConfig{{Name: "t_half"}},
	}
	tree := buildTree(t, cfg)
	grader := NewGrader(newFakeTemplate(), nil)

	result, err := grader.Grade(context.Background(), tree, testSubmission())
	require.NoError(t, err)

	focus := BuildFocus(result)
	assert.NotEmpty(t, focus.Base)
	assert.NotEmpty(t, focus.Bonus)
	assert.NotEmpty(t, focus.Penalty)
}

func TestFocusMixedSubjectSplitsImpact(t *testing.T) {
	sw := 80.0
	cfg := &criteria.Config{
		Base: &criteria.CategoryConfig{
			Weight: 100,
			Subjects: []criteria.SubjectConfig{
				{
					SubjectName:    "mixed",
					Weight:         100,
					SubjectsWeight: &sw,
					Tests:          []criteria.TestConfig{{Name: "t_fail"}},
					Subjects: []criteria.SubjectConfig{
						{SubjectName: "inner", Weight: 100, Tests: []criteria.TestConfig{{Name: "t_fail"}}},
					},
				},
			},
		},
	}
	tree := buildTree(t, cfg)
	grader := NewGrader(newFakeTemplate(), nil)

	result, err := grader.Grade(context.Background(), tree, testSubmission())
	require.NoError(t, err)

	focus := BuildFocus(result)
	require.Len(t, focus.Base, 2)

	// Inner test carries 80% of the subject mass, the direct test 20%.
	assert.Equal(t, "mixed/inner", focus.Base[0].SubjectPath)
	assert.InDelta(t, 80.0, focus.Base[0].Impact, 1e-9)
	assert.InDelta(t, 20.0, focus.Base[1].Impact, 1e-9)
}
