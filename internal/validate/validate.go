// Package validate checks normalized feed events against AIS protocol
// ranges before they reach the ingestion pipeline. Every violated rule
// is collected so diagnostics can show the full picture, not just the
// first failure.
package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/snekkenull/AISight-sub001/internal/domain/event"
	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

// FutureTolerance absorbs clock skew between the feed source and this
// host. Timestamps further in the future than this are rejected.
const FutureTolerance = 60 * time.Second

var (
	mmsiPattern = regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, model.MMSIDigits))
	imoPattern  = regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, model.IMONumberDigits))

	mmsiRule = fmt.Sprintf("must be exactly %d digits", model.MMSIDigits)
	imoRule  = fmt.Sprintf("must be exactly %d digits", model.IMONumberDigits)
)

// Violation names one failed rule on one field.
type Violation struct {
	Field string
	Rule  string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Rule
}

// Result carries all violations found in one event. An empty result
// means the event is acceptable.
type Result struct {
	Violations []Violation
}

func (r Result) OK() bool {
	return len(r.Violations) == 0
}

// PrimaryReason is the first violation, used as the headline in
// rejection diagnostics and metrics labels.
func (r Result) PrimaryReason() string {
	if len(r.Violations) == 0 {
		return ""
	}
	return r.Violations[0].String()
}

func (r *Result) add(field, rule string) {
	r.Violations = append(r.Violations, Violation{Field: field, Rule: rule})
}

// Position checks a position report against protocol bounds.
func Position(e event.PositionEvent, now time.Time) Result {
	var r Result

	if !mmsiPattern.MatchString(e.MMSI) {
		r.add("mmsi", mmsiRule)
	}
	if e.Timestamp.IsZero() {
		r.add("timestamp", "missing")
	} else if e.Timestamp.After(now.Add(FutureTolerance)) {
		r.add("timestamp", "in the future")
	}
	if e.Lat < -90 || e.Lat > 90 {
		r.add("lat", "out of range [-90, 90]")
	}
	if e.Lon < -180 || e.Lon > 180 {
		r.add("lon", "out of range [-180, 180]")
	}
	if e.SOG != nil && (*e.SOG < 0 || *e.SOG > model.MaxSOG) {
		r.add("sog", fmt.Sprintf("out of range [0, %.1f]", model.MaxSOG))
	}
	if e.COG != nil && (*e.COG < 0 || *e.COG > model.MaxCOG) {
		r.add("cog", fmt.Sprintf("out of range [0, %.0f]", model.MaxCOG))
	}
	if e.Heading != nil && (*e.Heading < 0 || *e.Heading > model.MaxHeading) {
		r.add("heading", fmt.Sprintf("out of range [0, %d]", model.MaxHeading))
	}

	return r
}

// StaticData checks a vessel metadata report. Optional fields are only
// validated when present.
func StaticData(e event.StaticDataEvent, now time.Time) Result {
	var r Result

	if !mmsiPattern.MatchString(e.MMSI) {
		r.add("mmsi", mmsiRule)
	}
	if !e.Timestamp.IsZero() && e.Timestamp.After(now.Add(FutureTolerance)) {
		r.add("timestamp", "in the future")
	}
	if e.IMO != nil && !imoPattern.MatchString(*e.IMO) {
		r.add("imo", imoRule)
	}
	if e.ShipType != nil && (*e.ShipType < 0 || *e.ShipType > model.MaxShipType) {
		r.add("ship_type", fmt.Sprintf("out of range [0, %d]", model.MaxShipType))
	}
	if e.DimToBow != nil && (*e.DimToBow < 0 || *e.DimToBow > model.MaxDimBow) {
		r.add("dim_to_bow", fmt.Sprintf("out of range [0, %d]", model.MaxDimBow))
	}
	if e.DimToStern != nil && (*e.DimToStern < 0 || *e.DimToStern > model.MaxDimStern) {
		r.add("dim_to_stern", fmt.Sprintf("out of range [0, %d]", model.MaxDimStern))
	}
	if e.DimToPort != nil && (*e.DimToPort < 0 || *e.DimToPort > model.MaxDimPort) {
		r.add("dim_to_port", fmt.Sprintf("out of range [0, %d]", model.MaxDimPort))
	}
	if e.DimToStarboard != nil && (*e.DimToStarboard < 0 || *e.DimToStarboard > model.MaxDimStarboard) {
		r.add("dim_to_starboard", fmt.Sprintf("out of range [0, %d]", model.MaxDimStarboard))
	}
	if e.Draught != nil && (*e.Draught < 0 || *e.Draught > model.MaxDraught) {
		r.add("draught", fmt.Sprintf("out of range [0, %.1f]", model.MaxDraught))
	}

	return r
}
