package modelmgr

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/vision"
)

type fakeDetector struct {
	faces []vision.Face
}

func (f fakeDetector) Detect(img *image.NRGBA) ([]vision.Face, error) { return f.faces, nil }
func (f fakeDetector) Embed(img *image.NRGBA, face vision.Face) (*vision.Embedding, error) {
	return &vision.Embedding{}, nil
}
func (f fakeDetector) Close() error { return nil }

type fakeSwapper struct{}

func (fakeSwapper) Swap(dst *image.NRGBA, target vision.Face, source *vision.Embedding) error {
	return nil
}
func (fakeSwapper) Close() error { return nil }

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("onnx-bytes"), 0o644))
	return path
}

// N concurrent first calls must pay for exactly one load and observe the
// identical handle.
func TestManager_AcquireDetector_SingleConstruction(t *testing.T) {
	artifact := writeArtifact(t, t.TempDir(), "det.onnx")

	var loads atomic.Int32
	m := NewManager(Config{DetectorPaths: []string{artifact}})
	m.newDetector = func(path string) (vision.Detector, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		return fakeDetector{}, nil
	}

	const n = 32
	handles := make([]*DetectorHandle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.AcquireDetector(context.Background())
			require.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, loads.Load())
	for i := 1; i < n; i++ {
		require.Same(t, handles[0], handles[i])
	}
	require.Equal(t, CapDetection, handles[0].Capability)
	require.Equal(t, artifact, handles[0].ArtifactPath)
}

func TestManager_AcquireDetector_FailureIsNotCached(t *testing.T) {
	artifact := writeArtifact(t, t.TempDir(), "det.onnx")

	calls := 0
	m := NewManager(Config{DetectorPaths: []string{artifact}})
	m.newDetector = func(path string) (vision.Detector, error) {
		calls++
		if calls == 1 {
			return nil, os.ErrPermission
		}
		return fakeDetector{}, nil
	}

	_, err := m.AcquireDetector(context.Background())
	require.ErrorIs(t, err, model.ErrModelUnavailable)

	h, err := m.AcquireDetector(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, 2, calls)
}

func TestManager_AcquireSwapper_Unobtainable(t *testing.T) {
	m := NewManager(Config{
		SwapperPaths: []string{filepath.Join(t.TempDir(), "missing.onnx")},
		Retry:        retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1},
	})

	_, err := m.AcquireSwapper(context.Background())
	require.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestResolveArtifact_DownloadsOnMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("model-weights"))
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "models", "swap.onnx")
	strategy := retry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1}

	path, err := resolveArtifact(context.Background(), "swapper", []string{target}, srv.URL, strategy)
	require.NoError(t, err)
	require.Equal(t, target, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("model-weights"), data)
}

func TestResolveArtifact_PrefersExistingLocation(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "missing.onnx")
	second := writeArtifact(t, dir, "present.onnx")

	strategy := retry.Strategy{Attempts: 1, Delay: time.Millisecond, Backoff: 1}
	path, err := resolveArtifact(context.Background(), "detector", []string{first, second}, "http://unreachable.invalid/m.onnx", strategy)
	require.NoError(t, err)
	require.Equal(t, second, path)
}

func TestManager_AcquireReferenceFace(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "det.onnx")

	refPath := filepath.Join(dir, "reference.jpg")
	img := imaging.New(64, 64, image.White.C)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	require.NoError(t, os.WriteFile(refPath, buf.Bytes(), 0o644))

	m := NewManager(Config{
		DetectorPaths: []string{artifact},
		ReferencePath: refPath,
	})
	m.newDetector = func(path string) (vision.Detector, error) {
		return fakeDetector{faces: []vision.Face{{Box: vision.BoundingBox{X2: 32, Y2: 32}, Score: 0.9}}}, nil
	}

	ref, err := m.AcquireReferenceFace(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ref.Embedding)
	require.NotEmpty(t, ref.Bytes)

	again, err := m.AcquireReferenceFace(context.Background())
	require.NoError(t, err)
	require.Same(t, ref, again)
}

func TestManager_AcquireReferenceFace_Missing(t *testing.T) {
	artifact := writeArtifact(t, t.TempDir(), "det.onnx")

	m := NewManager(Config{
		DetectorPaths: []string{artifact},
		ReferencePath: filepath.Join(t.TempDir(), "nope.jpg"),
	})
	m.newDetector = func(path string) (vision.Detector, error) {
		return fakeDetector{}, nil
	}

	_, err := m.AcquireReferenceFace(context.Background())
	require.ErrorIs(t, err, model.ErrReferenceFaceMissing)
}
