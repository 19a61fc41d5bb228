package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// subscriptionFrame is the outbound auth + filter message sent right
// after the websocket handshake. BoundingBoxes use [[minLat,minLon],
// [maxLat,maxLon]] pairs per the stream protocol.
type subscriptionFrame struct {
	APIKey             string         `json:"APIKey"`
	BoundingBoxes      [][][2]float64 `json:"BoundingBoxes"`
	FilterMessageTypes []string       `json:"FilterMessageTypes,omitempty"`
}

// inboundFrame is the envelope around every stream message.
type inboundFrame struct {
	MessageType string      `json:"MessageType"`
	MetaData    frameMeta   `json:"MetaData"`
	Message     frameBodies `json:"Message"`
}

type frameMeta struct {
	MMSI      int64   `json:"MMSI"`
	ShipName  string  `json:"ShipName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	TimeUTC   string  `json:"time_utc"`
}

type frameBodies struct {
	PositionReport *positionReport `json:"PositionReport"`
	ShipStaticData *shipStaticData `json:"ShipStaticData"`
}

type positionReport struct {
	Latitude           *float64 `json:"Latitude"`
	Longitude          *float64 `json:"Longitude"`
	Sog                *float64 `json:"Sog"`
	Cog                *float64 `json:"Cog"`
	TrueHeading        *int     `json:"TrueHeading"`
	NavigationalStatus *int     `json:"NavigationalStatus"`
	RateOfTurn         *int     `json:"RateOfTurn"`
}

type shipStaticData struct {
	ImoNumber            *int64     `json:"ImoNumber"`
	Name                 *string    `json:"Name"`
	CallSign             *string    `json:"CallSign"`
	Type                 *int       `json:"Type"`
	Dimension            *dimension `json:"Dimension"`
	MaximumStaticDraught *float64   `json:"MaximumStaticDraught"`
	Destination          *string    `json:"Destination"`
	Eta                  *etaFields `json:"Eta"`
}

type dimension struct {
	A int `json:"A"` // to bow
	B int `json:"B"` // to stern
	C int `json:"C"` // to port
	D int `json:"D"` // to starboard
}

type etaFields struct {
	Month  int `json:"Month"`
	Day    int `json:"Day"`
	Hour   int `json:"Hour"`
	Minute int `json:"Minute"`
}

// metaTimeLayouts cover the timestamp formats observed on the wire.
var metaTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700 UTC",
	time.RFC3339Nano,
}

// decoded holds the outcome of normalizing one frame; exactly one of
// the two event pointers is set, or neither when the frame carries a
// message type the subscription does not care about.
type decoded struct {
	position   *event.PositionEvent
	staticData *event.StaticDataEvent
}

// decodeFrame normalizes one raw frame into a canonical event. Frames
// missing the fields an event cannot exist without (mmsi, and lat/lon
// for position reports) yield no event and no error; only malformed
// JSON is reported back for counting.
func decodeFrame(raw []byte, receivedAt time.Time) (decoded, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return decoded{}, fmt.Errorf("unmarshal frame: %w", err)
	}

	if frame.MetaData.MMSI <= 0 {
		return decoded{}, nil
	}
	mmsi := fmt.Sprintf("%09d", frame.MetaData.MMSI)

	ts := parseMetaTime(frame.MetaData.TimeUTC)
	if ts.IsZero() {
		ts = receivedAt
	}

	switch frame.MessageType {
	case "PositionReport":
		report := frame.Message.PositionReport
		if report == nil || report.Latitude == nil || report.Longitude == nil {
			return decoded{}, nil
		}
		e := event.PositionEvent{
			MMSI:       mmsi,
			Timestamp:  ts,
			Lat:        *report.Latitude,
			Lon:        *report.Longitude,
			SOG:        report.Sog,
			COG:        report.Cog,
			Heading:    report.TrueHeading,
			RateOfTurn: report.RateOfTurn,
		}
		if report.NavigationalStatus != nil {
			status := model.NavStatus(*report.NavigationalStatus)
			e.NavStatus = &status
		}
		return decoded{position: &e}, nil

	case "ShipStaticData":
		data := frame.Message.ShipStaticData
		if data == nil {
			return decoded{}, nil
		}
		e := event.StaticDataEvent{
			MMSI:        mmsi,
			Timestamp:   ts,
			CallSign:    trimmedOrNil(data.CallSign),
			ShipType:    data.Type,
			Draught:     data.MaximumStaticDraught,
			Destination: trimmedOrNil(data.Destination),
		}
		if name := trimmedOrNil(data.Name); name != nil {
			e.Name = name
		} else if metaName := trimString(frame.MetaData.ShipName); metaName != "" {
			e.Name = &metaName
		}
		if data.ImoNumber != nil && *data.ImoNumber > 0 {
			imo := fmt.Sprintf("%07d", *data.ImoNumber)
			e.IMO = &imo
		}
		if d := data.Dimension; d != nil {
			e.DimToBow = &d.A
			e.DimToStern = &d.B
			e.DimToPort = &d.C
			e.DimToStarboard = &d.D
		}
		if eta := data.Eta; eta != nil && eta.Month >= 1 && eta.Month <= 12 && eta.Day >= 1 && eta.Day <= 31 {
			e.ETA = resolveETA(*eta, ts)
		}
		return decoded{staticData: &e}, nil

	default:
		return decoded{}, nil
	}
}

func parseMetaTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range metaTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// resolveETA turns the month/day/hour/minute fields into a concrete
// timestamp in the year that puts the ETA nearest ahead of the report.
func resolveETA(eta etaFields, ref time.Time) *time.Time {
	hour, minute := eta.Hour, eta.Minute
	if hour > 23 {
		hour = 0
	}
	if minute > 59 {
		minute = 0
	}
	candidate := time.Date(ref.Year(), time.Month(eta.Month), eta.Day, hour, minute, 0, 0, time.UTC)
	// An ETA months behind the report refers to next year.
	if candidate.Before(ref.Add(-30 * 24 * time.Hour)) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return &candidate
}

func trimString(s string) string {
	// Static data fields arrive space-padded to their fixed AIS width.
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '@') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '@') {
		end--
	}
	return s[start:end]
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := trimString(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
