package services

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

const (
	DefaultClusters       = 4
	defaultArtworkTimeout = 5 * time.Second
	sampleEdge            = 64
	minOpaqueAlpha        = 128
)

// ArtworkExtractor downloads cover art and reduces it to its dominant color.
type ArtworkExtractor struct {
	api      *APIService
	clusters int
	timeout  time.Duration
	logger   *log.Logger
}

// NewArtworkExtractor returns an extractor partitioning pixels into k clusters (k < 1 uses [DefaultClusters]).
func NewArtworkExtractor(api *APIService, k int, logger *log.Logger) *ArtworkExtractor {
	if api == nil {
		api = NewAPIService("", nil)
	}
	if k < 1 {
		k = DefaultClusters
	}
	return &ArtworkExtractor{
		api:      api,
		clusters: k,
		timeout:  defaultArtworkTimeout,
		logger:   shared.WithLogger(logger, "component", "artwork"),
	}
}

// Extract downloads imageURL and returns its dominant color. All failures wrap [shared.ErrExtraction].
func (e *ArtworkExtractor) Extract(ctx context.Context, imageURL string) (models.RGB, error) {
	if imageURL == "" {
		return models.RGB{}, fmt.Errorf("%w: no artwork url", shared.ErrExtraction)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	data, err := e.api.Download(ctx, imageURL, MaxArtworkBytes)
	if err != nil {
		return models.RGB{}, fmt.Errorf("%w: %w", shared.ErrExtraction, err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.RGB{}, fmt.Errorf("%w: decode: %v", shared.ErrExtraction, err)
	}

	c, err := DominantColor(img, e.clusters)
	if err != nil {
		return models.RGB{}, err
	}

	e.logger.Debug("extracted color", "url", imageURL, "format", format, "color", c.Hex(), "elapsed", time.Since(start))
	return c, nil
}

// DominantColor samples img on a grid of at most 64×64 opaque pixels.
//
// When there are no more than k distinct colors the most frequent one wins. Otherwise the
// samples are partitioned with k-means and the center of the largest cluster is returned.
func DominantColor(img image.Image, k int) (models.RGB, error) {
	if k < 1 {
		k = DefaultClusters
	}

	samples := samplePixels(img)
	if len(samples) == 0 {
		return models.RGB{}, fmt.Errorf("%w: image has no opaque pixels", shared.ErrExtraction)
	}

	counts := make(map[models.RGB]int)
	for _, c := range samples {
		counts[c]++
	}
	if len(counts) <= k {
		return mostFrequent(counts), nil
	}

	obs := make(clusters.Observations, 0, len(samples))
	for _, c := range samples {
		obs = append(obs, clusters.Coordinates{float64(c.R), float64(c.G), float64(c.B)})
	}

	cc, err := kmeans.New().Partition(obs, k)
	if err != nil {
		return models.RGB{}, fmt.Errorf("%w: clustering: %v", shared.ErrExtraction, err)
	}

	largest := slices.MaxFunc(cc, func(a, b clusters.Cluster) int {
		return cmp.Compare(len(a.Observations), len(b.Observations))
	})
	if len(largest.Center) < 3 {
		return models.RGB{}, fmt.Errorf("%w: empty cluster center", shared.ErrExtraction)
	}

	return models.RGB{
		R: channel(largest.Center[0]),
		G: channel(largest.Center[1]),
		B: channel(largest.Center[2]),
	}, nil
}

func samplePixels(img image.Image) []models.RGB {
	b := img.Bounds()
	stepX := max(1, (b.Dx()+sampleEdge-1)/sampleEdge)
	stepY := max(1, (b.Dy()+sampleEdge-1)/sampleEdge)

	samples := make([]models.RGB, 0, min(b.Dx(), sampleEdge)*min(b.Dy(), sampleEdge))
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < minOpaqueAlpha {
				continue
			}
			samples = append(samples, models.RGB{R: c.R, G: c.G, B: c.B})
		}
	}
	return samples
}

// mostFrequent breaks ties on the hex value so results are stable.
func mostFrequent(counts map[models.RGB]int) models.RGB {
	var best models.RGB
	bestN := -1
	for c, n := range counts {
		if n > bestN || (n == bestN && c.Hex() < best.Hex()) {
			best, bestN = c, n
		}
	}
	return best
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
