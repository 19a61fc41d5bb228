package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snekkenull/AISight-sub001/internal/domain/event"
)

func f64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int         { return &i }
func strPtr(s string) *string   { return &s }

func validPosition(now time.Time) event.PositionEvent {
	return event.PositionEvent{
		MMSI:      "366123456",
		Timestamp: now.Add(-time.Second),
		Lat:       37.81,
		Lon:       -122.47,
		SOG:       f64Ptr(12.5),
		COG:       f64Ptr(271.3),
		Heading:   intPtr(270),
	}
}

func TestPosition_AcceptsValidReport(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	r := Position(validPosition(now), now)
	assert.True(t, r.OK())
	assert.Empty(t, r.PrimaryReason())
}

func TestPosition_CollectsAllViolations(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	e := validPosition(now)
	e.MMSI = "12345"
	e.Lat = 91.0
	e.SOG = f64Ptr(200.0)

	r := Position(e, now)
	require.False(t, r.OK())
	assert.Len(t, r.Violations, 3)
	assert.Equal(t, "mmsi: must be exactly 9 digits", r.PrimaryReason())
}

func TestPosition_FieldBounds(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(*event.PositionEvent)
		field  string
	}{
		{name: "non-numeric mmsi", mutate: func(e *event.PositionEvent) { e.MMSI = "36612345x" }, field: "mmsi"},
		{name: "latitude above range", mutate: func(e *event.PositionEvent) { e.Lat = 90.1 }, field: "lat"},
		{name: "latitude below range", mutate: func(e *event.PositionEvent) { e.Lat = -90.1 }, field: "lat"},
		{name: "longitude out of range", mutate: func(e *event.PositionEvent) { e.Lon = 180.5 }, field: "lon"},
		{name: "negative sog", mutate: func(e *event.PositionEvent) { e.SOG = f64Ptr(-0.1) }, field: "sog"},
		{name: "sog above protocol max", mutate: func(e *event.PositionEvent) { e.SOG = f64Ptr(102.4) }, field: "sog"},
		{name: "cog above range", mutate: func(e *event.PositionEvent) { e.COG = f64Ptr(360.1) }, field: "cog"},
		{name: "heading above sentinel", mutate: func(e *event.PositionEvent) { e.Heading = intPtr(512) }, field: "heading"},
		{name: "zero timestamp", mutate: func(e *event.PositionEvent) { e.Timestamp = time.Time{} }, field: "timestamp"},
		{name: "timestamp beyond skew tolerance", mutate: func(e *event.PositionEvent) { e.Timestamp = now.Add(61 * time.Second) }, field: "timestamp"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := validPosition(now)
			tt.mutate(&e)
			r := Position(e, now)
			require.False(t, r.OK())
			assert.Equal(t, tt.field, r.Violations[0].Field)
		})
	}
}

func TestPosition_ToleratesSmallClockSkew(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	e := validPosition(now)
	e.Timestamp = now.Add(59 * time.Second)
	assert.True(t, Position(e, now).OK())
}

func TestPosition_HeadingSentinelAccepted(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	e := validPosition(now)
	e.Heading = intPtr(511)
	assert.True(t, Position(e, now).OK())
}

func TestStaticData_OptionalFieldsOnlyCheckedWhenPresent(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	r := StaticData(event.StaticDataEvent{MMSI: "366123456", Timestamp: now}, now)
	assert.True(t, r.OK())
}

func TestStaticData_FieldBounds(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	tests := []struct {
		name  string
		event event.StaticDataEvent
		field string
	}{
		{name: "short mmsi", event: event.StaticDataEvent{MMSI: "123"}, field: "mmsi"},
		{name: "imo wrong length", event: event.StaticDataEvent{MMSI: "366123456", IMO: strPtr("123456")}, field: "imo"},
		{name: "imo non-numeric", event: event.StaticDataEvent{MMSI: "366123456", IMO: strPtr("123456x")}, field: "imo"},
		{name: "ship type above range", event: event.StaticDataEvent{MMSI: "366123456", ShipType: intPtr(100)}, field: "ship_type"},
		{name: "dim to bow above range", event: event.StaticDataEvent{MMSI: "366123456", DimToBow: intPtr(512)}, field: "dim_to_bow"},
		{name: "dim to port above range", event: event.StaticDataEvent{MMSI: "366123456", DimToPort: intPtr(64)}, field: "dim_to_port"},
		{name: "draught above range", event: event.StaticDataEvent{MMSI: "366123456", Draught: f64Ptr(25.6)}, field: "draught"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := StaticData(tt.event, now)
			require.False(t, r.OK())
			assert.Equal(t, tt.field, r.Violations[0].Field)
		})
	}
}
