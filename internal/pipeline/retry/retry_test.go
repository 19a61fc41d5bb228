package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Classify(Transient(errors.New("feed read timed out")))
	assert.Equal(t, ClassTransient, transient.Class)
	assert.Equal(t, "explicit_transient", transient.Reason)

	terminal := Classify(Terminal(errors.New("invalid api key")))
	assert.Equal(t, ClassTerminal, terminal.Class)
	assert.Equal(t, "explicit_terminal", terminal.Reason)
}

func TestClassify_RepresentativeRuntimeErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		expectedClass Class
	}{
		{
			name:          "context deadline transient",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
		},
		{
			name:          "context canceled terminal",
			err:           context.Canceled,
			expectedClass: ClassTerminal,
		},
		{
			name:          "websocket abnormal closure transient",
			err:           &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "read tcp: connection reset"},
			expectedClass: ClassTransient,
		},
		{
			name:          "websocket policy violation terminal",
			err:           &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "invalid api key"},
			expectedClass: ClassTerminal,
		},
		{
			name:          "postgres connection failure transient",
			err:           &pq.Error{Code: "08006", Message: "connection failure"},
			expectedClass: ClassTransient,
		},
		{
			name:          "postgres deadlock transient",
			err:           &pq.Error{Code: "40P01", Message: "deadlock detected"},
			expectedClass: ClassTransient,
		},
		{
			name:          "postgres unique violation terminal",
			err:           &pq.Error{Code: "23505", Message: "duplicate key value"},
			expectedClass: ClassTerminal,
		},
		{
			name:          "connection refused message transient",
			err:           errors.New("dial tcp 10.0.0.1:443: connection refused"),
			expectedClass: ClassTransient,
		},
		{
			name:          "auth failure message terminal",
			err:           errors.New("handshake rejected: authentication failed"),
			expectedClass: ClassTerminal,
		},
		{
			name:          "unknown defaults terminal",
			err:           errors.New("unexpected failure"),
			expectedClass: ClassTerminal,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
		})
	}
}
