package domain

import "time"

// Status описывает состояние подключения аккаунта
type Status int

const (
	StatusInitializing Status = iota
	StatusQrPending
	StatusAuthenticated
	StatusReady
	StatusDisconnected
	StatusAuthFailed
	StatusTimedOut
	StatusErrored
)

var statusNames = map[Status]string{
	StatusInitializing:  "initializing",
	StatusQrPending:     "qr_pending",
	StatusAuthenticated: "authenticated",
	StatusReady:         "ready",
	StatusDisconnected:  "disconnected",
	StatusAuthFailed:    "auth_failed",
	StatusTimedOut:      "timed_out",
	StatusErrored:       "errored",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal показывает, что попытка сессии закончена и нужен внешний рестарт
func (s Status) Terminal() bool {
	return s == StatusAuthFailed || s == StatusTimedOut || s == StatusErrored
}

// Snapshot — неизменяемый снимок SessionState для читателей
type Snapshot struct {
	Status           Status
	QRPayload        string
	ErrorDetail      string
	LastTransitionAt time.Time
}

func (s Snapshot) HasQR() bool { return s.QRPayload != "" }

func (s Snapshot) IsReady() bool { return s.Status == StatusReady }

// EventKind — тип события от внешней сессии
type EventKind int

const (
	EventQR EventKind = iota
	EventAuthenticated
	EventReady
	EventAuthFailure
	EventDisconnected
	EventError
	EventMessage
	// EventQRTimeout — окно сканирования QR истекло без входа
	EventQRTimeout
)

var eventNames = map[EventKind]string{
	EventQR:            "qr",
	EventAuthenticated: "authenticated",
	EventReady:         "ready",
	EventAuthFailure:   "auth_failure",
	EventDisconnected:  "disconnected",
	EventError:         "error",
	EventMessage:       "message",
	EventQRTimeout:     "qr_timeout",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// SessionEvent — одно событие из сессии.
// Payload: qr-код для EventQR, причина для auth_failure/disconnected/error.
type SessionEvent struct {
	Kind    EventKind
	Payload string
	Message *RawMessage
}

func QR(payload string) SessionEvent { return SessionEvent{Kind: EventQR, Payload: payload} }

func Authenticated() SessionEvent { return SessionEvent{Kind: EventAuthenticated} }

func Ready() SessionEvent { return SessionEvent{Kind: EventReady} }

func AuthFailure(reason string) SessionEvent {
	return SessionEvent{Kind: EventAuthFailure, Payload: reason}
}

func Disconnected(reason string) SessionEvent {
	return SessionEvent{Kind: EventDisconnected, Payload: reason}
}

func Fault(detail string) SessionEvent { return SessionEvent{Kind: EventError, Payload: detail} }

func QRTimeout(reason string) SessionEvent {
	return SessionEvent{Kind: EventQRTimeout, Payload: reason}
}

func Incoming(msg RawMessage) SessionEvent {
	return SessionEvent{Kind: EventMessage, Message: &msg}
}
