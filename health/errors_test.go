package health

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	errs := []error{ErrCheckFailed, ErrCheckTimeout, ErrCheckerNotFound, ErrCheckPanicked}
	for i, a := range errs {
		if a.Error() == "" {
			t.Errorf("error %d has empty message", i)
		}
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
