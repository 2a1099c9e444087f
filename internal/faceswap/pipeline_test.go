package faceswap

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/modelmgr"
	"github.com/lazylama/memeswap/internal/vision"
)

// MOCK STORAGE

type memStorage struct {
	mu   sync.Mutex
	objs map[string][]byte
	fail bool
}

func newMemStorage() *memStorage {
	return &memStorage{objs: map[string][]byte{}}
}

func (m *memStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	if m.fail {
		return errors.New("storage is down")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = data
	return nil
}

// MOCK MODELS

type fakeDetector struct {
	faces []vision.Face
	err   error
}

func (f fakeDetector) Detect(img *image.NRGBA) ([]vision.Face, error) { return f.faces, f.err }
func (f fakeDetector) Embed(img *image.NRGBA, face vision.Face) (*vision.Embedding, error) {
	return &vision.Embedding{}, nil
}
func (f fakeDetector) Close() error { return nil }

type fakeSwapper struct {
	err   error
	calls int
}

func (f *fakeSwapper) Swap(dst *image.NRGBA, target vision.Face, src *vision.Embedding) error {
	f.calls++
	return f.err
}
func (f *fakeSwapper) Close() error { return nil }

type fakeModels struct {
	detector vision.Detector
	swapper  vision.Swapper
	detErr   error
	swapErr  error
}

func (f *fakeModels) AcquireDetector(ctx context.Context) (*modelmgr.DetectorHandle, error) {
	if f.detErr != nil {
		return nil, f.detErr
	}
	return &modelmgr.DetectorHandle{Detector: f.detector}, nil
}

func (f *fakeModels) AcquireSwapper(ctx context.Context) (*modelmgr.SwapperHandle, error) {
	if f.swapErr != nil {
		return nil, f.swapErr
	}
	return &modelmgr.SwapperHandle{Swapper: f.swapper}, nil
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, image.White.C)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func faceBox(w, h float32) vision.Face {
	return vision.Face{Box: vision.BoundingBox{X1: 10, Y1: 10, X2: 10 + w, Y2: 10 + h}, Score: 0.9}
}

func testRef() *modelmgr.ReferenceFace {
	return &modelmgr.ReferenceFace{Embedding: &vision.Embedding{}}
}

// A face covering 1% of the image must be gated out; 5% must be swapped.
func TestPipeline_QualityGate(t *testing.T) {
	tests := []struct {
		name      string
		face      vision.Face
		wantSwaps int
	}{
		{name: "1 percent face rejected", face: faceBox(10, 10), wantSwaps: 0},
		{name: "5 percent face swapped", face: faceBox(23, 23), wantSwaps: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strg := newMemStorage()
			sw := &fakeSwapper{}
			p := New(Config{}, strg, &fakeModels{
				detector: fakeDetector{faces: []vision.Face{tt.face}},
				swapper:  sw,
			})

			res, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 100, 100)}, testRef())
			require.NoError(t, err)
			require.Equal(t, tt.wantSwaps, res.FacesSwapped)
			require.Equal(t, tt.wantSwaps, sw.calls)
			if tt.wantSwaps == 0 {
				require.Equal(t, res.OriginalKey, res.SwappedKey)
				require.False(t, res.Swapped)
			} else {
				require.NotEqual(t, res.OriginalKey, res.SwappedKey)
				require.True(t, res.Swapped)
			}
		})
	}
}

// Inputs wider than the threshold are downscaled proportionally.
func TestPipeline_DownscaleInvariant(t *testing.T) {
	strg := newMemStorage()
	p := New(Config{}, strg, &fakeModels{detector: fakeDetector{}, swapper: &fakeSwapper{}})

	res, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 2000, 3000)}, testRef())
	require.NoError(t, err)

	stored, ok := strg.objs[res.OriginalKey]
	require.True(t, ok)

	img, err := imaging.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Equal(t, 1200, img.Bounds().Dx())
	require.Equal(t, 1800, img.Bounds().Dy())
}

func TestPipeline_SmallImagePassedThrough(t *testing.T) {
	strg := newMemStorage()
	p := New(Config{}, strg, &fakeModels{detector: fakeDetector{}, swapper: &fakeSwapper{}})

	res, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 800, 600)}, testRef())
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(strg.objs[res.OriginalKey]))
	require.NoError(t, err)
	require.Equal(t, 800, img.Bounds().Dx())
}

// No detectable face is a normal outcome, never an error.
func TestPipeline_NoFace(t *testing.T) {
	strg := newMemStorage()
	p := New(Config{}, strg, &fakeModels{detector: fakeDetector{}, swapper: &fakeSwapper{}})

	res, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 100, 100)}, testRef())
	require.NoError(t, err)
	require.Zero(t, res.FacesSwapped)
	require.Equal(t, res.OriginalKey, res.SwappedKey)
}

// Capability failures downgrade to a zero-swap result.
func TestPipeline_CapabilityErrorsDowngrade(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{
			name:   "detector unavailable",
			models: &fakeModels{detErr: model.ErrModelUnavailable, swapper: &fakeSwapper{}},
		},
		{
			name:   "detection fails",
			models: &fakeModels{detector: fakeDetector{err: errors.New("malformed model state")}, swapper: &fakeSwapper{}},
		},
		{
			name:   "swapper unavailable",
			models: &fakeModels{detector: fakeDetector{faces: []vision.Face{faceBox(50, 50)}}, swapErr: model.ErrModelUnavailable},
		},
		{
			name:   "swap fails per face",
			models: &fakeModels{detector: fakeDetector{faces: []vision.Face{faceBox(50, 50)}}, swapper: &fakeSwapper{err: errors.New("bad tensor")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strg := newMemStorage()
			p := New(Config{}, strg, tt.models)

			res, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 100, 100)}, testRef())
			require.NoError(t, err)
			require.Zero(t, res.FacesSwapped)
			require.Equal(t, res.OriginalKey, res.SwappedKey)
		})
	}
}

func TestPipeline_InvalidImage(t *testing.T) {
	p := New(Config{}, newMemStorage(), &fakeModels{})

	_, err := p.Run(context.Background(), &model.SwapRequest{Data: []byte("not an image")}, testRef())
	require.ErrorIs(t, err, model.ErrInvalidImage)

	_, err = p.Run(context.Background(), &model.SwapRequest{}, testRef())
	require.ErrorIs(t, err, model.ErrInvalidImage)
}

func TestPipeline_PersistenceError(t *testing.T) {
	strg := newMemStorage()
	strg.fail = true
	p := New(Config{}, strg, &fakeModels{detector: fakeDetector{}, swapper: &fakeSwapper{}})

	_, err := p.Run(context.Background(), &model.SwapRequest{Data: testJPEG(t, 100, 100)}, testRef())
	require.ErrorIs(t, err, model.ErrCommon500)
}
