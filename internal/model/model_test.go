package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sokinpui/code-llm/internal/review"
)

func TestFromReview(t *testing.T) {
	s := FromReview(&review.Result{
		Err: errors.New("closed"),
		Files: []review.FileResult{
			{Path: "a", Status: review.StatusApplied, Before: "1", After: "2"},
			{Path: "b", Status: review.StatusApplied, Created: true},
			{Path: "same", Status: review.StatusApplied, Before: "1", After: "1"},
			{Path: "c", Status: review.StatusRejected},
			{Path: "d", Status: review.StatusConflict},
			{Path: "e", Status: review.StatusWriteError},
		},
	})
	assert.Equal(t, []string{"a"}, s.Modified)
	assert.Equal(t, []string{"b"}, s.Created)
	assert.Equal(t, []string{"d", "e"}, s.Failed)
	assert.Equal(t, "Review ended early: closed", s.Message)
	assert.False(t, s.Empty())
	assert.True(t, Summary{}.Empty())
}
