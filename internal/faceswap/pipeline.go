// Package faceswap runs the swap pipeline: decode, downscale, detect,
// quality-gate, swap against the reference face, encode and persist.
package faceswap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime/debug"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // register webp decoding, trending images are often webp

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/modelmgr"
	"github.com/lazylama/memeswap/internal/mwlogger"
)

// Storage - контракт для работы с хранилищем
type Storage interface {
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// Models provides the shared capability handles.
type Models interface {
	AcquireDetector(ctx context.Context) (*modelmgr.DetectorHandle, error)
	AcquireSwapper(ctx context.Context) (*modelmgr.SwapperHandle, error)
}

type Config struct {
	MaxWidth       int     // downscale threshold, default 1200
	MinFaceArea    float64 // quality gate, face area fraction of image, default 0.02
	JPEGQuality    int     // default 85
	OrigKeyPrefix  string
	SwapKeyPrefix  string
	AggressiveFree bool // return freed buffers to the OS after every run
}

type Pipeline struct {
	cfg     Config
	storage Storage
	models  Models
}

func New(cfg Config, storage Storage, models Models) *Pipeline {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1200
	}
	if cfg.MinFaceArea <= 0 {
		cfg.MinFaceArea = 0.02
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.OrigKeyPrefix == "" {
		cfg.OrigKeyPrefix = "orig/"
	}
	if cfg.SwapKeyPrefix == "" {
		cfg.SwapKeyPrefix = "swap/"
	}
	return &Pipeline{cfg: cfg, storage: storage, models: models}
}

// Run executes the full pipeline for one request. Zero accepted faces is
// a normal outcome: the original is reused as the swapped output and no
// error is returned. Capability failures mid-swap downgrade to the same
// zero-swap outcome; decode and persistence failures surface as errors.
func (p *Pipeline) Run(ctx context.Context, req *model.SwapRequest, ref *modelmgr.ReferenceFace) (*model.SwapResult, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if len(req.Data) == 0 {
		return nil, model.ErrInvalidImage
	}

	src, format, err := decode(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidImage, err)
	}

	// proportional downscale, never upscale
	maxWidth := req.MaxWidth
	if maxWidth <= 0 {
		maxWidth = p.cfg.MaxWidth
	}
	if src.Bounds().Dx() > maxWidth {
		src = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	uid := uuid.New().String()
	ext := model.GetImageFileExt[model.GetCType[format]]

	encoded, err := p.encode(src, format)
	if err != nil {
		return nil, fmt.Errorf("encoding original: %w", err)
	}

	origKey := p.cfg.OrigKeyPrefix + uid + ext
	if err := p.storage.Put(ctx, origKey, int64(len(encoded)), model.GetCType[format], bytes.NewReader(encoded)); err != nil {
		logger.Error().Err(err).Str("key", origKey).Msg("Failed to save original in Storage")
		return nil, model.ErrCommon500
	}

	result := &model.SwapResult{
		OriginalKey: origKey,
		SwappedKey:  origKey,
		CreatedAt:   time.Now().UTC(),
	}

	swapped := p.swapFaces(ctx, src, ref)
	if p.cfg.AggressiveFree {
		defer debug.FreeOSMemory()
	}
	if swapped == 0 {
		logger.Info().Str("key", origKey).Msg("No swappable faces, reusing original")
		return result, nil
	}

	encoded, err = p.encode(src, format)
	if err != nil {
		return nil, fmt.Errorf("encoding swapped image: %w", err)
	}

	swapKey := p.cfg.SwapKeyPrefix + uid + ext
	if err := p.storage.Put(ctx, swapKey, int64(len(encoded)), model.GetCType[format], bytes.NewReader(encoded)); err != nil {
		logger.Error().Err(err).Str("key", swapKey).Msg("Failed to save swapped image in Storage")
		return nil, model.ErrCommon500
	}

	result.SwappedKey = swapKey
	result.FacesSwapped = swapped
	result.Swapped = true

	logger.Info().Int("faces", swapped).Str("key", swapKey).Msg("Face swap complete")
	return result, nil
}

// swapFaces detects, gates and swaps in place. Any capability failure is
// logged and counted as zero for that face - never propagated.
func (p *Pipeline) swapFaces(ctx context.Context, img *image.NRGBA, ref *modelmgr.ReferenceFace) int {
	logger := mwlogger.LoggerFromContext(ctx)

	detector, err := p.models.AcquireDetector(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Detector unavailable, skipping swap")
		return 0
	}

	faces, err := detector.Detect(img)
	if err != nil {
		logger.Warn().Err(err).Msg("Face detection failed, skipping swap")
		return 0
	}

	accepted := faces[:0]
	for _, f := range faces {
		if f.RelativeArea(img.Bounds()) >= p.cfg.MinFaceArea {
			accepted = append(accepted, f)
		}
	}
	if len(accepted) == 0 {
		return 0
	}

	swapper, err := p.models.AcquireSwapper(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Swapper unavailable, skipping swap")
		return 0
	}

	swapped := 0
	for _, f := range accepted {
		if err := swapper.Swap(img, f, ref.Embedding); err != nil {
			logger.Warn().Err(err).Msg("Swap failed for one face")
			continue
		}
		swapped++
	}

	return swapped
}

// decode converts the source bytes into a uniform NRGBA working buffer and
// reports the detected source format.
func decode(data []byte) (*image.NRGBA, imaging.Format, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, imaging.JPEG, err
	}

	format := imaging.JPEG
	if _, name, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		// PNG keeps transparency, everything else is re-encoded as JPEG
		if f, fErr := imaging.FormatFromExtension(name); fErr == nil && f == imaging.PNG {
			format = imaging.PNG
		}
	}

	return imaging.Clone(img), format, nil
}

func (p *Pipeline) encode(img *image.NRGBA, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case imaging.PNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality))
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
