package coreerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleettools/coordinator/pkg/coreerrors"
)

func TestKindOf_ClassifiesCodedErrorsByTheirOwnKind(t *testing.T) {
	err := coreerrors.New(coreerrors.KindCyclic, "dependency graph has a cycle")
	assert.Equal(t, coreerrors.KindCyclic, coreerrors.KindOf(err))
}

func TestKindOf_ClassifiesSentinelErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind coreerrors.Kind
	}{
		{coreerrors.ErrNotFound, coreerrors.KindNotFound},
		{coreerrors.ErrAlreadyExists, coreerrors.KindConflict},
		{coreerrors.ErrConcurrentModification, coreerrors.KindConflict},
		{coreerrors.ErrDuplicateEventID, coreerrors.KindConflict},
		{coreerrors.ErrCyclicDependency, coreerrors.KindCyclic},
		{coreerrors.ErrNotOwner, coreerrors.KindAuthorisation},
		{coreerrors.ErrNotAssigned, coreerrors.KindAuthorisation},
		{coreerrors.ErrInvalidTransition, coreerrors.KindPrecondition},
		{coreerrors.ErrNonMonotonicCursor, coreerrors.KindPrecondition},
		{coreerrors.ErrStoreUnavailable, coreerrors.KindStoreUnavail},
		{coreerrors.ErrInvalidInput, coreerrors.KindValidation},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, coreerrors.KindOf(c.err), c.err.Error())
	}
}

func TestKindOf_WrappedSentinelStillClassifies(t *testing.T) {
	wrapped := errors.New("lookup failed: " + coreerrors.ErrNotFound.Error())
	assert.Equal(t, coreerrors.KindInternal, coreerrors.KindOf(wrapped))

	properlyWrapped := coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "mission msn-1 not found")
	assert.Equal(t, coreerrors.KindNotFound, coreerrors.KindOf(properlyWrapped))
	assert.ErrorIs(t, properlyWrapped, coreerrors.ErrNotFound)
}

func TestKindOf_ValidationErrorClassifiesAsValidation(t *testing.T) {
	err := coreerrors.NewValidationError("title", "must not be empty")
	assert.True(t, coreerrors.IsValidationError(err))
	assert.Equal(t, coreerrors.KindValidation, coreerrors.KindOf(err))
}

func TestKindOf_NilAndUnknownDefaults(t *testing.T) {
	assert.Equal(t, coreerrors.Kind(""), coreerrors.KindOf(nil))
	assert.Equal(t, coreerrors.KindInternal, coreerrors.KindOf(errors.New("boom")))
}

func TestExitCode_MapsKindsPerCLIContract(t *testing.T) {
	assert.Equal(t, 0, coreerrors.ExitCode(nil))
	assert.Equal(t, 2, coreerrors.ExitCode(coreerrors.New(coreerrors.KindValidation, "bad input")))
	assert.Equal(t, 2, coreerrors.ExitCode(coreerrors.ErrCyclicDependency))
	assert.Equal(t, 3, coreerrors.ExitCode(coreerrors.ErrStoreUnavailable))
	assert.Equal(t, 1, coreerrors.ExitCode(coreerrors.New(coreerrors.KindFatal, "panic recovered")))
}

func TestCodedError_WithDetailAndCorrelationID(t *testing.T) {
	err := coreerrors.New(coreerrors.KindConflict, "lock held").
		WithDetail(map[string]string{"path": "/a.go"}).
		WithCorrelationID("corr-1")

	assert.Contains(t, err.Error(), "corr-1")
	assert.Equal(t, map[string]string{"path": "/a.go"}, err.Detail)
}
