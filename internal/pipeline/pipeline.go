// internal/pipeline/pipeline.go - Detection pipeline orchestration
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"poolscan/internal"
	"poolscan/internal/cache"
	"poolscan/internal/config"
	"poolscan/internal/detect"
	"poolscan/internal/imagery"
	"poolscan/pkg/geo"
)

// Service sequences the detection pipeline for one parcel at a time:
// cache lookup, coverage planning, tile fetch, assembly, inference,
// projection, filtering, suppression, cache write. Instances are safe for
// concurrent use; the cache is the only shared state.
type Service struct {
	cfg      *config.Config
	cache    *cache.Store
	fetcher  imagery.Fetcher
	detector detect.Detector
	logger   *slog.Logger
}

// New creates a pipeline service from explicitly constructed collaborators
func New(cfg *config.Config, store *cache.Store, fetcher imagery.Fetcher, detector detect.Detector, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		cache:    store,
		fetcher:  fetcher,
		detector: detector,
		logger:   logger,
	}
}

// Detect runs the pipeline for a parcel. With forceRefresh the cache
// lookup is skipped entirely but the result is still written back.
func (s *Service) Detect(ctx context.Context, parcelID string, geometry *geojson.Geometry, forceRefresh bool) (*internal.DetectionResult, error) {
	start := time.Now()

	if parcelID == "" {
		return nil, internal.NewError(internal.ErrorCodeValidation, "parcelId is required", nil)
	}

	if !forceRefresh {
		if entry, ok := s.cache.Get(parcelID); ok {
			s.logger.Info("returning cached result", "parcel", parcelID, "pools", len(entry.Detections))
			return &internal.DetectionResult{
				ParcelID:       parcelID,
				Pools:          entry.Detections,
				ProcessingTime: time.Since(start).Seconds(),
				Cached:         true,
			}, nil
		}
	}

	parcelBound, err := geo.PolygonBound(geometry)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeInvalidBounds, "invalid parcel geometry", err)
	}

	zoom, tiles, err := geo.Plan(parcelBound, s.cfg.Imagery.ZoomRules, s.cfg.Imagery.FinestZoom)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeInvalidBounds, "coverage planning failed", err)
	}
	s.logger.Info("planned tile coverage", "parcel", parcelID, "zoom", zoom, "tiles", len(tiles))

	fetched, err := s.fetcher.FetchBatch(ctx, tiles)
	if err != nil {
		return nil, err
	}

	pools := []internal.PoolDetection{}
	if len(fetched) == 0 {
		// A legitimate terminal state: no imagery means zero detections,
		// and that answer is worth caching.
		s.logger.Warn("no imagery available", "parcel", parcelID)
	} else {
		raster := imagery.Assemble(fetched, parcelBound)

		candidates, err := s.detector.Infer(ctx, raster.Image)
		if err != nil {
			// A capability failure is not an authoritative empty result;
			// it must never be cached.
			return nil, err
		}

		pools = s.project(candidates, raster, parcelBound)
	}

	if err := ctx.Err(); err != nil {
		return nil, internal.NewError(internal.ErrorCodeTimeout, "detection canceled", err)
	}

	s.cache.Put(parcelID, pools)

	s.logger.Info("detection completed",
		"parcel", parcelID, "pools", len(pools),
		"elapsed", time.Since(start))

	return &internal.DetectionResult{
		ParcelID:       parcelID,
		Pools:          pools,
		ProcessingTime: time.Since(start).Seconds(),
		Cached:         false,
	}, nil
}

// project converts pixel-space candidates into deduplicated geographic
// detections clipped to the parcel's bounding box
func (s *Service) project(candidates []detect.RawDetection, raster *imagery.Raster, parcelBound orb.Bound) []internal.PoolDetection {
	size := raster.Image.Bounds().Size()

	detections := make([]geo.Detection, 0, len(candidates))
	for _, candidate := range candidates {
		// Cheap rejection before any geometry work.
		if candidate.Confidence < s.cfg.Detection.MinConfidence {
			continue
		}

		detections = append(detections, geo.Detection{
			Polygon:    geo.ProjectBox(candidate.X1, candidate.Y1, candidate.X2, candidate.Y2, size.X, size.Y, raster.Bound),
			Confidence: candidate.Confidence,
			ClassID:    candidate.ClassID,
		})
	}

	detections = geo.FilterToParcel(detections, parcelBound)
	detections = geo.Suppress(detections, s.cfg.Detection.IoUThreshold)

	pools := make([]internal.PoolDetection, 0, len(detections))
	for _, detection := range detections {
		pools = append(pools, internal.PoolDetection{
			Geometry:   geojson.NewGeometry(detection.Polygon),
			Confidence: detection.Confidence,
			ClassID:    detection.ClassID,
		})
	}
	return pools
}

// ClearCache removes the cached result for one parcel
func (s *Service) ClearCache(parcelID string) {
	s.cache.Clear(parcelID)
	s.logger.Info("cleared cache", "parcel", parcelID)
}

// ClearAllCache removes every cached result and resets statistics
func (s *Service) ClearAllCache() {
	s.cache.ClearAll()
	s.logger.Info("cleared all cache entries")
}

// CacheStats reports cache statistics
func (s *Service) CacheStats() internal.CacheStatistics {
	return s.cache.Stats()
}
