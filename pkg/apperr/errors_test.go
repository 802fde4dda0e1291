package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersKeepSentinel(t *testing.T) {
	assert.ErrorIs(t, Validationf("bad input %d", 7), ErrValidation)
	assert.ErrorIs(t, NotFoundf("conversation"), ErrNotFound)
	assert.ErrorIs(t, Forbiddenf("not yours"), ErrForbidden)
	assert.ErrorIs(t, Internal(errors.New("boom")), ErrInternal)
	assert.NoError(t, Internal(nil))
}

func TestReasonCodes(t *testing.T) {
	cases := map[string]error{
		"validation":   Validationf("x"),
		"not-found":    NotFoundf("x"),
		"forbidden":    Forbiddenf("x"),
		"rate-limited": ErrRateLimited,
		"internal":     errors.New("anything unexpected"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Reason(err))
	}
}
