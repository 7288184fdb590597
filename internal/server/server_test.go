// internal/server/server_test.go - Unit tests for the HTTP surface
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"poolscan/internal"
	"poolscan/internal/cache"
	"poolscan/internal/config"
	"poolscan/internal/detect"
	"poolscan/internal/imagery"
	"poolscan/internal/pipeline"
	"poolscan/pkg/geo"
)

var testTile = maptile.At(orb.Point{-118.4495, 34.0505}, 19)

type stubFetcher struct {
	tiles []*imagery.FetchedTile
}

func (f *stubFetcher) Fetch(ctx context.Context, tile maptile.Tile) (*imagery.FetchedTile, error) {
	return nil, nil
}

func (f *stubFetcher) FetchBatch(ctx context.Context, tiles []maptile.Tile) ([]*imagery.FetchedTile, error) {
	return f.tiles, nil
}

type stubDetector struct {
	detections []detect.RawDetection
	err        error
}

func (d *stubDetector) Infer(ctx context.Context, img image.Image) ([]detect.RawDetection, error) {
	return d.detections, d.err
}

func newTestServer(t *testing.T, fetcher imagery.Fetcher, detector detect.Detector) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Imagery: config.ImageryConfig{
			ZoomRules:  geo.DefaultZoomRules(),
			FinestZoom: geo.DefaultFinestZoom,
		},
		Detection: config.DetectionConfig{MinConfidence: 0.3, IoUThreshold: 0.5},
	}

	store, err := cache.NewStore(&config.CacheConfig{
		Directory:  t.TempDir(),
		TTL:        time.Hour,
		MaxEntries: 100,
	}, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	service := pipeline.New(cfg, store, fetcher, detector, logger)
	ts := httptest.NewServer(New(service, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func detectBody(parcelID string, forceRefresh bool) []byte {
	payload := fmt.Sprintf(`{
		"parcelId": %q,
		"forceRefresh": %t,
		"geometry": {
			"type": "Polygon",
			"coordinates": [[
				[%f, %f], [%f, %f], [%f, %f], [%f, %f], [%f, %f]
			]]
		}
	}`, parcelID, forceRefresh,
		testTile.Bound().Min.X(), testTile.Bound().Min.Y(),
		testTile.Bound().Max.X(), testTile.Bound().Min.Y(),
		testTile.Bound().Max.X(), testTile.Bound().Max.Y(),
		testTile.Bound().Min.X(), testTile.Bound().Max.Y(),
		testTile.Bound().Min.X(), testTile.Bound().Min.Y())
	return []byte(payload)
}

func TestDetectEndpoint(t *testing.T) {
	fetcher := &stubFetcher{tiles: []*imagery.FetchedTile{{
		Tile:  testTile,
		Image: image.NewRGBA(image.Rect(0, 0, 256, 256)),
		Bound: testTile.Bound(),
	}}}
	detector := &stubDetector{detections: []detect.RawDetection{
		{X1: 100, Y1: 100, X2: 150, Y2: 150, ClassID: 67, Confidence: 0.9},
	}}
	ts := newTestServer(t, fetcher, detector)

	resp, err := http.Post(ts.URL+"/cv/pool-detect", "application/json",
		bytes.NewReader(detectBody("parcel-1", false)))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result internal.DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode error = %v", err)
	}

	if result.ParcelID != "parcel-1" {
		t.Errorf("parcelId = %s", result.ParcelID)
	}
	if len(result.Pools) != 1 || result.Pools[0].Confidence != 0.9 {
		t.Errorf("pools = %+v", result.Pools)
	}
	if result.Cached {
		t.Error("first request reported cached=true")
	}
}

func TestDetectEndpointInvalidGeometry(t *testing.T) {
	ts := newTestServer(t, &stubFetcher{}, &stubDetector{})

	body := []byte(`{"parcelId":"p1","geometry":{"type":"Point","coordinates":[0,0]}}`)
	resp, err := http.Post(ts.URL+"/cv/pool-detect", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if errResp.Error.Code != internal.ErrorCodeInvalidBounds {
		t.Errorf("error code = %s, want %s", errResp.Error.Code, internal.ErrorCodeInvalidBounds)
	}
}

func TestDetectEndpointCapabilityFailure(t *testing.T) {
	fetcher := &stubFetcher{tiles: []*imagery.FetchedTile{{
		Tile:  testTile,
		Image: image.NewRGBA(image.Rect(0, 0, 256, 256)),
		Bound: testTile.Bound(),
	}}}
	detector := &stubDetector{err: internal.NewError(internal.ErrorCodeDetection, "model unavailable", nil)}
	ts := newTestServer(t, fetcher, detector)

	resp, err := http.Post(ts.URL+"/cv/pool-detect", "application/json",
		bytes.NewReader(detectBody("parcel-1", false)))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	fetcher := &stubFetcher{tiles: []*imagery.FetchedTile{{
		Tile:  testTile,
		Image: image.NewRGBA(image.Rect(0, 0, 256, 256)),
		Bound: testTile.Bound(),
	}}}
	detector := &stubDetector{}
	ts := newTestServer(t, fetcher, detector)

	if _, err := http.Post(ts.URL+"/cv/pool-detect", "application/json",
		bytes.NewReader(detectBody("parcel-1", false))); err != nil {
		t.Fatalf("priming POST error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/cv/cache/parcel-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// The next detect must recompute rather than serve from cache.
	second, err := http.Post(ts.URL+"/cv/pool-detect", "application/json",
		bytes.NewReader(detectBody("parcel-1", false)))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer second.Body.Close()

	var result internal.DetectionResult
	if err := json.NewDecoder(second.Body).Decode(&result); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if result.Cached {
		t.Error("detect served cached result after cache clear")
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubFetcher{}, &stubDetector{})

	resp, err := http.Get(ts.URL + "/cv/cache/stats")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var stats internal.CacheStatistics
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if stats.Size != 0 || stats.HitRate != 0 {
		t.Errorf("fresh stats = %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubFetcher{}, &stubDetector{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health = %+v", health)
	}
}
