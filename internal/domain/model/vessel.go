package model

import "time"

// Protocol bounds for AIS static data fields. Dimension fields are the
// distances from the reported GPS antenna position to the hull extremes.
const (
	MaxShipType       = 99
	MaxDimBow         = 511
	MaxDimStern       = 511
	MaxDimPort        = 63
	MaxDimStarboard   = 63
	MaxDraught        = 25.5
	IMONumberDigits   = 7
	MMSIDigits        = 9
)

// Vessel is the durable identity record for a single vessel, keyed by
// MMSI. All fields other than MMSI are filled in lazily as static data
// reports arrive; a nil field means the feed has never reported it.
// Zero is a legitimate value for every numeric field, so presence is
// tracked with pointers rather than zero sentinels.
type Vessel struct {
	MMSI           string     `db:"mmsi"`
	IMO            *string    `db:"imo"`
	Name           *string    `db:"name"`
	CallSign       *string    `db:"call_sign"`
	ShipType       *int       `db:"ship_type"`
	DimToBow       *int       `db:"dim_to_bow"`
	DimToStern     *int       `db:"dim_to_stern"`
	DimToPort      *int       `db:"dim_to_port"`
	DimToStarboard *int       `db:"dim_to_starboard"`
	Draught        *float64   `db:"draught"`
	Destination    *string    `db:"destination"`
	ETA            *time.Time `db:"eta"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}
