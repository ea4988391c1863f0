package scheduler

import (
	"context"
	"fmt"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

// ValidationResult is one automatic validator's verdict.
type ValidationResult struct {
	Name   string
	Passed bool
	Detail string
}

// OpenReviewAndValidate opens a review for a completed sortie and runs the
// automatic validators described in §4.6 ("tests_passed flag, lint, type
// check, declared vs touched files, merge-conflict check"). Approval folds
// the sortie back to completed; any failure rejects it with feedback
// attached, returning it to in_progress for rework.
func (s *Service) OpenReviewAndValidate(ctx context.Context, sortieID string) ([]ValidationResult, error) {
	sr, err := s.lifecycle.GetSortie(ctx, sortieID)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.OpenReview(ctx, sortieID); err != nil {
		return nil, err
	}

	results := s.runValidators(sr)
	allPassed := true
	for _, r := range results {
		if !r.Passed {
			allPassed = false
			break
		}
	}

	if allPassed {
		return results, s.lifecycle.ApproveReview(ctx, sortieID)
	}
	return results, s.lifecycle.RejectReview(ctx, sortieID, feedbackFrom(results))
}

func (s *Service) runValidators(sr lifecycle.Sortie) []ValidationResult {
	results := make([]ValidationResult, 0, 5)

	testsPassed, _ := sr.Result["tests_passed"].(bool)
	results = append(results, ValidationResult{Name: "tests_passed", Passed: testsPassed})

	lintClean := true
	if v, ok := sr.Result["lint_errors"].(float64); ok && v > 0 {
		lintClean = false
	}
	results = append(results, ValidationResult{Name: "lint", Passed: lintClean})

	typesClean := true
	if v, ok := sr.Result["type_errors"].(float64); ok && v > 0 {
		typesClean = false
	}
	results = append(results, ValidationResult{Name: "type_check", Passed: typesClean})

	declaredMatch := filesMatchDeclared(sr)
	results = append(results, ValidationResult{
		Name: "declared_vs_touched_files", Passed: declaredMatch,
		Detail: fmt.Sprintf("declared=%v touched=%v", sr.Files, sr.Result["touched_files"]),
	})

	mergeClean := true
	if v, ok := sr.Result["merge_conflict"].(bool); ok && v {
		mergeClean = false
	}
	results = append(results, ValidationResult{Name: "merge_conflict_check", Passed: mergeClean})

	return results
}

func filesMatchDeclared(sr lifecycle.Sortie) bool {
	touched, ok := sr.Result["touched_files"].([]interface{})
	if !ok {
		return true // nothing declared as touched, nothing to contradict
	}
	declared := make(map[string]bool, len(sr.Files))
	for _, f := range sr.Files {
		declared[f] = true
	}
	for _, t := range touched {
		f, _ := t.(string)
		if !declared[f] {
			return false
		}
	}
	return true
}

func feedbackFrom(results []ValidationResult) string {
	feedback := "review failed: "
	first := true
	for _, r := range results {
		if r.Passed {
			continue
		}
		if !first {
			feedback += ", "
		}
		feedback += r.Name
		first = false
	}
	return feedback
}
