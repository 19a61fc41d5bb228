package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavStatus_String(t *testing.T) {
	tests := []struct {
		name   string
		status NavStatus
		want   string
	}{
		{"under way engine", NavStatusUnderWayEngine, "under way using engine"},
		{"at anchor", NavStatusAtAnchor, "at anchor"},
		{"not under command", NavStatusNotUnderCmd, "not under command"},
		{"restricted", NavStatusRestricted, "restricted manoeuvrability"},
		{"constrained", NavStatusConstrained, "constrained by draught"},
		{"moored", NavStatusMoored, "moored"},
		{"aground", NavStatusAground, "aground"},
		{"fishing", NavStatusFishing, "engaged in fishing"},
		{"under way sail", NavStatusUnderWaySail, "under way sailing"},
		{"not defined", NavStatusNotDefined, "not defined"},
		{"reserved code", NavStatus(11), "reserved (11)"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestHeadingSentinelIsUpperBound(t *testing.T) {
	assert.Equal(t, HeadingUnavailable, MaxHeading)
}
