package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snekkenull/AISight-sub001/internal/domain/model"
)

const (
	// PositionTTL bounds how long a cached position is served; a vessel
	// that stops reporting ages out of the live view on its own.
	PositionTTL = 60 * time.Second

	// MetadataTTL is longer since static data changes rarely.
	MetadataTTL = time.Hour

	positionKeyPrefix = "position:"
	metadataKeyPrefix = "metadata:"
	geoKey            = "vessels:geo"
	activeKey         = "vessels:active"

	// GEOADD rejects latitudes outside the Web Mercator range.
	maxGeoLat = 85.05112878

	kmPerDegreeLat = 111.045
)

// Cache is the Redis-backed live view: per-vessel position and metadata
// entries with TTLs, plus a geo index for bounding-box queries.
type Cache struct {
	client *redis.Client
}

func NewCache(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetPosition caches a vessel's latest position, refreshes its entry in
// the geo index, and records it as recently active. All writes go out
// in one pipeline round trip.
func (c *Cache) SetPosition(ctx context.Context, p *model.LatestPosition) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", p.MMSI, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, positionKeyPrefix+p.MMSI, payload, PositionTTL)
	if math.Abs(p.Lat) <= maxGeoLat {
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      p.MMSI,
			Longitude: p.Lon,
			Latitude:  p.Lat,
		})
	}
	pipe.ZAdd(ctx, activeKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: p.MMSI,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache position %s: %w", p.MMSI, err)
	}
	return nil
}

func (c *Cache) GetPosition(ctx context.Context, mmsi string) (*model.LatestPosition, error) {
	payload, err := c.client.Get(ctx, positionKeyPrefix+mmsi).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached position %s: %w", mmsi, err)
	}

	var p model.LatestPosition
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal cached position %s: %w", mmsi, err)
	}
	return &p, nil
}

func (c *Cache) SetMetadata(ctx context.Context, v *model.Vessel) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", v.MMSI, err)
	}
	if err := c.client.Set(ctx, metadataKeyPrefix+v.MMSI, payload, MetadataTTL).Err(); err != nil {
		return fmt.Errorf("cache metadata %s: %w", v.MMSI, err)
	}
	return nil
}

func (c *Cache) GetMetadata(ctx context.Context, mmsi string) (*model.Vessel, error) {
	payload, err := c.client.Get(ctx, metadataKeyPrefix+mmsi).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached metadata %s: %w", mmsi, err)
	}

	var v model.Vessel
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal cached metadata %s: %w", mmsi, err)
	}
	return &v, nil
}

// RemoveVessel drops every trace of a vessel from the live view.
func (c *Cache) RemoveVessel(ctx context.Context, mmsi string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, positionKeyPrefix+mmsi, metadataKeyPrefix+mmsi)
	pipe.ZRem(ctx, geoKey, mmsi)
	pipe.ZRem(ctx, activeKey, mmsi)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove vessel %s: %w", mmsi, err)
	}
	return nil
}

// VesselsInBounds returns the cached positions of vessels currently
// inside the bounding box. The geo index answers an over-covering box
// search; results are then filtered against the exact rectangle, and
// vessels whose position entry has already expired are skipped.
func (c *Cache) VesselsInBounds(ctx context.Context, bounds model.BoundingBox) ([]model.LatestPosition, error) {
	centerLat, centerLon := bounds.Center()
	widthKM := (bounds.MaxLon - bounds.MinLon) * kmPerDegreeLat * math.Cos(centerLat*math.Pi/180)
	heightKM := (bounds.MaxLat - bounds.MinLat) * kmPerDegreeLat

	locations, err := c.client.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude: centerLon,
			Latitude:  centerLat,
			BoxWidth:  math.Abs(widthKM) * 1.05,
			BoxHeight: math.Abs(heightKM) * 1.05,
			BoxUnit:   "km",
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	positions := make([]model.LatestPosition, 0, len(locations))
	for _, loc := range locations {
		p, err := c.GetPosition(ctx, loc.Name)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		if !bounds.Contains(p.Lat, p.Lon) {
			continue
		}
		positions = append(positions, *p)
	}
	return positions, nil
}

// ActiveCount reports how many vessels have been seen within the
// position TTL window, pruning stale entries as a side effect.
func (c *Cache) ActiveCount(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-PositionTTL).Unix()

	if err := c.client.ZRemRangeByScore(ctx, activeKey, "-inf", fmt.Sprintf("%d", cutoff-1)).Err(); err != nil {
		return 0, fmt.Errorf("prune active vessels: %w", err)
	}
	count, err := c.client.ZCard(ctx, activeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count active vessels: %w", err)
	}
	return count, nil
}
