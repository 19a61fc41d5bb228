package model

// BoundingBox is a rectangular geographic area. Min/Max refer to the
// south-west and north-east corners; boxes never wrap the antimeridian
// (regions that would are split into two boxes instead).
type BoundingBox struct {
	MinLat float64 `yaml:"min_lat" json:"minLat"`
	MinLon float64 `yaml:"min_lon" json:"minLon"`
	MaxLat float64 `yaml:"max_lat" json:"maxLat"`
	MaxLon float64 `yaml:"max_lon" json:"maxLon"`
}

// Contains reports whether the point lies inside the box, borders
// included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Region is a named subscription window for the upstream feed.
type Region struct {
	Name   string        `yaml:"name"`
	Bounds []BoundingBox `yaml:"bounds"`
}

// ContainsLocation reports whether any of the region's boxes contains
// the point.
func (r Region) ContainsLocation(lat, lon float64) bool {
	for _, b := range r.Bounds {
		if b.Contains(lat, lon) {
			return true
		}
	}
	return false
}

// DefaultRegions is the built-in rotation set: six windows that
// together cover the globe. Operators can replace it with a YAML file
// (see config.RegionsFile).
func DefaultRegions() []Region {
	return []Region{
		{Name: "north-atlantic", Bounds: []BoundingBox{{MinLat: 0, MinLon: -100, MaxLat: 72, MaxLon: 0}}},
		{Name: "europe-mediterranean", Bounds: []BoundingBox{{MinLat: 30, MinLon: 0, MaxLat: 72, MaxLon: 45}}},
		{Name: "indian-ocean", Bounds: []BoundingBox{{MinLat: -45, MinLon: 20, MaxLat: 30, MaxLon: 100}}},
		{Name: "west-pacific", Bounds: []BoundingBox{{MinLat: -45, MinLon: 100, MaxLat: 65, MaxLon: 180}}},
		{Name: "east-pacific", Bounds: []BoundingBox{{MinLat: -45, MinLon: -180, MaxLat: 65, MaxLon: -100}}},
		{Name: "south-atlantic", Bounds: []BoundingBox{{MinLat: -60, MinLon: -70, MaxLat: 0, MaxLon: 20}}},
	}
}
