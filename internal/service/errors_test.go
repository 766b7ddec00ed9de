package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := fail("LogTaskCompletion", ErrDuplicateCompletion)

	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrDuplicateCompletion)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "LogTaskCompletion: task already logged for this day", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWrapKeepsInnerKind(t *testing.T) {
	err := wrap("AssignProgram", KindInternal, ErrReplaceNotAllowed)
	assert.Equal(t, KindConflict, KindOf(err))

	err = wrap("AssignProgram", KindInternal, errors.New("connection reset"))
	assert.ErrorIs(t, err, ErrInternalInconsistency)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindValidation, KindOf(invalid("op", "bad %s", "input")))
}
