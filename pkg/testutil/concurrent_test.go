package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
)

func TestRunConcurrent_Classifies(t *testing.T) {
	boom := errors.New("boom")
	result := RunConcurrent(8, func(idx int) error {
		switch idx % 4 {
		case 0:
			return nil
		case 1:
			return fmt.Errorf("create: %w", sentinel.ErrConflict)
		case 2:
			return dErrors.New(dErrors.CodeNotFound, "missing")
		default:
			return boom
		}
	})

	assert.Equal(t, int32(8), result.Total())
	assert.Equal(t, int32(2), result.Successes)
	assert.Equal(t, int32(2), result.Conflicts)
	assert.Equal(t, int32(2), result.NotFounds)
	assert.Equal(t, int32(2), result.Errors)
	assert.ErrorIs(t, result.First, boom)
}
