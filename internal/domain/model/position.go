package model

import (
	"fmt"
	"time"
)

// NavStatus is the AIS navigational status code (message types 1-3).
type NavStatus int

const (
	NavStatusUnderWayEngine NavStatus = 0
	NavStatusAtAnchor       NavStatus = 1
	NavStatusNotUnderCmd    NavStatus = 2
	NavStatusRestricted     NavStatus = 3
	NavStatusConstrained    NavStatus = 4
	NavStatusMoored         NavStatus = 5
	NavStatusAground        NavStatus = 6
	NavStatusFishing        NavStatus = 7
	NavStatusUnderWaySail   NavStatus = 8
	NavStatusNotDefined     NavStatus = 15
)

func (s NavStatus) String() string {
	switch s {
	case NavStatusUnderWayEngine:
		return "under way using engine"
	case NavStatusAtAnchor:
		return "at anchor"
	case NavStatusNotUnderCmd:
		return "not under command"
	case NavStatusRestricted:
		return "restricted manoeuvrability"
	case NavStatusConstrained:
		return "constrained by draught"
	case NavStatusMoored:
		return "moored"
	case NavStatusAground:
		return "aground"
	case NavStatusFishing:
		return "engaged in fishing"
	case NavStatusUnderWaySail:
		return "under way sailing"
	case NavStatusNotDefined:
		return "not defined"
	default:
		return fmt.Sprintf("reserved (%d)", int(s))
	}
}

// Kinematic field bounds from the AIS protocol. HeadingUnavailable is
// the on-wire sentinel for "no heading sensor"; it is stored as-is, so
// it doubles as the upper bound the validator accepts.
const (
	MaxSOG             = 102.3
	MaxCOG             = 360.0
	HeadingUnavailable = 511
	MaxHeading         = HeadingUnavailable
)

// Position is one timestamped observation of a vessel, keyed by
// (MMSI, Timestamp). Rows are immutable once written; a duplicate key
// is silently ignored at insert time.
type Position struct {
	MMSI       string     `db:"mmsi"`
	Timestamp  time.Time  `db:"ts"`
	Lat        float64    `db:"lat"`
	Lon        float64    `db:"lon"`
	SOG        *float64   `db:"sog"`
	COG        *float64   `db:"cog"`
	Heading    *int       `db:"heading"`
	NavStatus  *NavStatus `db:"nav_status"`
	RateOfTurn *int       `db:"rate_of_turn"`
	CreatedAt  time.Time  `db:"created_at"`
}

// LatestPosition mirrors the most recent Position per vessel. It is a
// derived row: the store only applies an update when the incoming
// timestamp is strictly newer than the stored one, so out-of-order
// flush completion can never move it backwards.
type LatestPosition struct {
	MMSI       string     `db:"mmsi"`
	Timestamp  time.Time  `db:"ts"`
	Lat        float64    `db:"lat"`
	Lon        float64    `db:"lon"`
	SOG        *float64   `db:"sog"`
	COG        *float64   `db:"cog"`
	Heading    *int       `db:"heading"`
	NavStatus  *NavStatus `db:"nav_status"`
	RateOfTurn *int       `db:"rate_of_turn"`
	UpdatedAt  time.Time  `db:"updated_at"`
}
