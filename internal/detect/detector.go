// internal/detect/detector.go - External detection capability adapter
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/disintegration/imaging"

	"poolscan/internal"
	"poolscan/internal/config"
)

// RawDetection is a pixel-space candidate box reported by the capability
type RawDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Detector is the sole seam to the external detection capability: one
// raster in, candidate boxes out. Any model or runtime can sit behind it.
type Detector interface {
	Infer(ctx context.Context, img image.Image) ([]RawDetection, error)
}

// HTTPDetector invokes a remote inference service over HTTP
type HTTPDetector struct {
	client *http.Client
	cfg    *config.DetectionConfig
	logger *slog.Logger
}

// NewHTTPDetector creates a detector backed by a remote inference service
func NewHTTPDetector(cfg *config.DetectionConfig, logger *slog.Logger) *HTTPDetector {
	return &HTTPDetector{
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
}

// Infer sends the raster to the inference service and decodes the
// candidate boxes. Inference carries its own timeout, distinct from the
// per-tile fetch timeouts.
func (d *HTTPDetector) Infer(ctx context.Context, img image.Image) ([]RawDetection, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "raster.jpg")
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "failed to create form file", err)
	}
	if err := imaging.Encode(part, img, imaging.JPEG); err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "failed to encode raster", err)
	}
	if err := writer.Close(); err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "failed to finalize request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.InferenceURL, body)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "failed to build inference request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "inference request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, internal.NewError(internal.ErrorCodeDetection,
			fmt.Sprintf("inference service returned HTTP %d: %s", resp.StatusCode, snippet), nil)
	}

	var result struct {
		Detections []RawDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, internal.NewError(internal.ErrorCodeDetection, "failed to decode inference response", err)
	}

	d.logger.Debug("inference completed", "candidates", len(result.Detections))
	return result.Detections, nil
}

// Healthy probes the inference service health endpoint
func (d *HTTPDetector) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.InferenceURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
