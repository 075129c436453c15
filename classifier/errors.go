package classifier

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrModelNotLoaded   = errors.New("model not loaded")
	ErrFeatureAlignment = errors.New("feature alignment failed")

	EmptyDatasetErr = errors.New("dataset is empty")
	SingleClassErr  = errors.New("labels contain a single class")
)

// AlignmentError wraps failures to reconcile a feature row with the columns
// the active artifact pair was fit on
type AlignmentError struct {
	Cause error
}

func (err *AlignmentError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFeatureAlignment, err.Cause)
}

func (err *AlignmentError) Unwrap() error {
	return err.Cause
}

func (err *AlignmentError) Is(target error) bool {
	return target == ErrFeatureAlignment
}

type DimensionErr struct {
	Expected, Actual int
}

func (err DimensionErr) Error() string {
	return fmt.Sprintf("expected %d features, but got %d", err.Expected, err.Actual)
}

type LabelErr struct {
	Label int
}

func (err LabelErr) Error() string {
	return fmt.Sprintf("labels must be 0 or 1, got %d", err.Label)
}

type TooFewSamplesErr struct {
	Class, Count, Required int
}

func (err TooFewSamplesErr) Error() string {
	return fmt.Sprintf("class %d has %d samples, at least %d required", err.Class, err.Count, err.Required)
}
