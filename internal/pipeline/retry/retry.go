package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/lib/pq"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTransient,
		reason: "explicit_transient",
	}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTerminal,
		reason: "explicit_terminal",
	}
}

func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return classifyCloseCode(closeErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Decision{Class: ClassTransient, Reason: "net_timeout"}
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgresCode(string(pqErr.Code))
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

func classifyCloseCode(code int) Decision {
	switch code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure, websocket.CloseServiceRestart,
		websocket.CloseTryAgainLater:
		return Decision{Class: ClassTransient, Reason: "ws_close_transient"}
	case websocket.ClosePolicyViolation, websocket.CloseUnsupportedData,
		websocket.CloseInvalidFramePayloadData:
		return Decision{Class: ClassTerminal, Reason: "ws_close_terminal"}
	default:
		return Decision{Class: ClassTransient, Reason: "ws_close_unknown"}
	}
}

// classifyPostgresCode maps SQLSTATE classes: connection and resource
// failures retry, data and constraint errors do not.
func classifyPostgresCode(code string) Decision {
	if len(code) < 2 {
		return Decision{Class: ClassTerminal, Reason: "pg_malformed_code"}
	}
	switch code[:2] {
	case "08", "53", "57", "58":
		return Decision{Class: ClassTransient, Reason: "pg_class_" + code[:2]}
	case "40":
		// serialization_failure / deadlock_detected
		return Decision{Class: ClassTransient, Reason: "pg_class_40"}
	default:
		return Decision{Class: ClassTerminal, Reason: "pg_class_" + code[:2]}
	}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"temporary",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
	"use of closed network connection",
}

var terminalMessageTokens = []string{
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"invalid argument",
	"parse error",
	"not found",
	"constraint violation",
}
