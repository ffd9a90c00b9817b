package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrap(t *testing.T) {
	err := fmt.Errorf("send: %w", &NotReadyError{Status: StatusTimedOut})
	assert.ErrorIs(t, err, ErrNotReady)

	var nr *NotReadyError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, StatusTimedOut, nr.Status)
	assert.Contains(t, err.Error(), "timed_out")

	rej := &RejectedError{Detail: "invalid recipient"}
	assert.ErrorIs(t, rej, ErrRejected)
	assert.Equal(t, "message rejected by session: invalid recipient", rej.Error())
	assert.NotErrorIs(t, rej, ErrSendTimeout)
}
