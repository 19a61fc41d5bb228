package event

import (
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// PositionEvent is a normalized position report ready for validation
// and ingestion. Lat/Lon/MMSI are always set; the remaining kinematic
// fields are nil when the frame omitted them.
type PositionEvent struct {
	MMSI       string
	Timestamp  time.Time
	Lat        float64
	Lon        float64
	SOG        *float64
	COG        *float64
	Heading    *int
	NavStatus  *model.NavStatus
	RateOfTurn *int
}

// Position converts the event into its storage model.
func (e PositionEvent) Position() model.Position {
	return model.Position{
		MMSI:       e.MMSI,
		Timestamp:  e.Timestamp,
		Lat:        e.Lat,
		Lon:        e.Lon,
		SOG:        e.SOG,
		COG:        e.COG,
		Heading:    e.Heading,
		NavStatus:  e.NavStatus,
		RateOfTurn: e.RateOfTurn,
	}
}

// StaticDataEvent is a normalized vessel metadata report. Every field
// except MMSI is optional; nil fields never erase previously stored
// values (coalesce-on-upsert).
type StaticDataEvent struct {
	MMSI           string
	Timestamp      time.Time
	IMO            *string
	Name           *string
	CallSign       *string
	ShipType       *int
	DimToBow       *int
	DimToStern     *int
	DimToPort      *int
	DimToStarboard *int
	Draught        *float64
	Destination    *string
	ETA            *time.Time
}

// Vessel converts the event into a partial vessel record for upsert.
func (e StaticDataEvent) Vessel() model.Vessel {
	return model.Vessel{
		MMSI:           e.MMSI,
		IMO:            e.IMO,
		Name:           e.Name,
		CallSign:       e.CallSign,
		ShipType:       e.ShipType,
		DimToBow:       e.DimToBow,
		DimToStern:     e.DimToStern,
		DimToPort:      e.DimToPort,
		DimToStarboard: e.DimToStarboard,
		Draught:        e.Draught,
		Destination:    e.Destination,
		ETA:            e.ETA,
	}
}
