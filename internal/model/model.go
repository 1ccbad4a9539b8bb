package model

import (
	"fmt"

	"github.com/sokinpui/code-llm/internal/review"
)

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Failed   []string
	Message  string
}

// Empty reports whether no file was touched or failed.
func (s Summary) Empty() bool {
	return len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0
}

// FromReview sorts the files of a review into the summary lists. Rejected
// files appear nowhere.
func FromReview(res *review.Result) Summary {
	var s Summary
	for _, f := range res.Files {
		switch f.Status {
		case review.StatusApplied:
			switch {
			case f.Created:
				s.Created = append(s.Created, f.Path)
			case f.After != f.Before:
				s.Modified = append(s.Modified, f.Path)
			}
		case review.StatusConflict, review.StatusWriteError:
			s.Failed = append(s.Failed, f.Path)
		}
	}
	if res.Err != nil {
		s.Message = fmt.Sprintf("Review ended early: %v", res.Err)
	}
	return s
}
