package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady         = errors.New("session is not ready")
	ErrSendTimeout      = errors.New("message send timed out")
	ErrRejected         = errors.New("message rejected by session")
	ErrMalformedInbound = errors.New("malformed inbound message")
	ErrForwardTimeout   = errors.New("inbound forward timed out")
	ErrSessionFault     = errors.New("session fault")
	ErrInitTimeout      = errors.New("session initialization timed out")
)

// NotReadyError несёт статус сессии на момент отказа
type NotReadyError struct {
	Status Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s (status %s)", ErrNotReady, e.Status)
}

func (e *NotReadyError) Unwrap() error { return ErrNotReady }

// RejectedError — отказ сессии принять сообщение
type RejectedError struct {
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
