// internal/imagery/fetcher.go - Parallel best-effort tile fetching
package imagery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"poolscan/internal"
	"poolscan/internal/config"
)

// FetchedTile owns a decoded tile image and the geographic bounds it covers
type FetchedTile struct {
	Tile  maptile.Tile
	Image image.Image
	Bound orb.Bound
}

// Fetcher defines the interface for retrieving imagery tiles
type Fetcher interface {
	Fetch(ctx context.Context, tile maptile.Tile) (*FetchedTile, error)
	FetchBatch(ctx context.Context, tiles []maptile.Tile) ([]*FetchedTile, error)
}

// HTTPFetcher implements the Fetcher interface against a templated tile URL
type HTTPFetcher struct {
	client    *http.Client
	imagery   *config.ImageryConfig
	userAgent string
	logger    *slog.Logger
}

// NewHTTPFetcher creates a new HTTP-based tile fetcher
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Network.MaxIdleConns,
		IdleConnTimeout:     cfg.Network.IdleConnTimeout,
		DisableKeepAlives:   cfg.Network.DisableKeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxConnsPerHost:     cfg.Imagery.Concurrency,
	}

	return &HTTPFetcher{
		client:    &http.Client{Transport: transport},
		imagery:   &cfg.Imagery,
		userAgent: cfg.Network.UserAgent,
		logger:    logger,
	}
}

// Fetch retrieves and decodes a single tile. Each fetch carries its own
// timeout independent of sibling fetches.
func (f *HTTPFetcher) Fetch(ctx context.Context, tile maptile.Tile) (*FetchedTile, error) {
	ctx, cancel := context.WithTimeout(ctx, f.imagery.TileTimeout)
	defer cancel()

	url := f.imagery.TileURL(uint32(tile.Z), tile.X, tile.Y)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeNetwork, "failed to build tile request", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/*")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeNetwork, "tile request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, internal.NewError(internal.ErrorCodeNetwork,
			fmt.Sprintf("tile server returned HTTP %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeNetwork, "failed to read tile body", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to decode tile image", err)
	}

	return &FetchedTile{
		Tile:  tile,
		Image: img,
		Bound: tile.Bound(),
	}, nil
}

// FetchBatch fetches multiple tiles concurrently, bounded by the
// configured concurrency. Individual failures are logged and dropped;
// the result is whatever subset succeeded, in deterministic tile order.
// An empty result means no imagery is available, which is not an error.
func (f *HTTPFetcher) FetchBatch(ctx context.Context, tiles []maptile.Tile) ([]*FetchedTile, error) {
	if len(tiles) == 0 {
		return nil, nil
	}

	tileChan := make(chan maptile.Tile, len(tiles))
	resultChan := make(chan *FetchedTile, len(tiles))

	for _, tile := range tiles {
		tileChan <- tile
	}
	close(tileChan)

	concurrency := f.imagery.Concurrency
	if concurrency > len(tiles) {
		concurrency = len(tiles)
	}

	for i := 0; i < concurrency; i++ {
		go func() {
			for tile := range tileChan {
				select {
				case <-ctx.Done():
					resultChan <- nil
				default:
					fetched, err := f.Fetch(ctx, tile)
					if err != nil {
						f.logger.Warn("dropping failed tile",
							"tile", fmt.Sprintf("%d/%d/%d", tile.Z, tile.X, tile.Y),
							"error", err)
						resultChan <- nil
						continue
					}
					resultChan <- fetched
				}
			}
		}()
	}

	fetched := make([]*FetchedTile, 0, len(tiles))
	for i := 0; i < len(tiles); i++ {
		if result := <-resultChan; result != nil {
			fetched = append(fetched, result)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, internal.NewError(internal.ErrorCodeTimeout, "tile fetch canceled", err)
	}

	// Completion order depends on the network; restore tile order so
	// downstream assembly is deterministic.
	sort.Slice(fetched, func(i, j int) bool {
		a, b := fetched[i].Tile, fetched[j].Tile
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	return fetched, nil
}
