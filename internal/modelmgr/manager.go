// Package modelmgr owns the process-wide face model resources: the
// detection capability, the swap capability and the reference face. Each
// is loaded lazily, exactly once, and shared read-only by all requests.
package modelmgr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/model"
	"github.com/lazylama/memeswap/internal/vision"
)

type Capability string

const (
	CapDetection Capability = "detection"
	CapSwap      Capability = "swap"
)

// Handle describes one loaded capability.
type Handle struct {
	Capability   Capability
	ArtifactPath string
	LoadedAt     time.Time
}

// DetectorHandle bundles the detection capability with its handle info.
type DetectorHandle struct {
	Handle
	vision.Detector
}

// SwapperHandle bundles the swap capability with its handle info.
type SwapperHandle struct {
	Handle
	vision.Swapper
}

// ReferenceFace is the fixed identity swapped into every target image.
// Immutable after first load.
type ReferenceFace struct {
	Bytes     []byte
	Face      vision.Face
	Embedding *vision.Embedding
}

// Config for the manager. Candidate paths are tried in order; on miss the
// artifact is downloaded into the first writable candidate directory.
type Config struct {
	DetectorPaths  []string
	DetectorURL    string
	RecognizerPath string
	SwapperPaths   []string
	SwapperURL     string
	ReferencePath  string
	DetectionSize  int
	ConfThreshold  float32
	NMSThreshold   float32
	Retry          retry.Strategy
}

type Manager struct {
	cfg Config

	// factories are swappable for tests
	newDetector func(artifactPath string) (vision.Detector, error)
	newSwapper  func(artifactPath string) (vision.Swapper, error)

	mu       sync.Mutex
	detector *DetectorHandle
	swapper  *SwapperHandle
	ref      *ReferenceFace
}

func NewManager(cfg Config) *Manager {
	if cfg.DetectionSize <= 0 {
		cfg.DetectionSize = 640
	}
	if cfg.ConfThreshold <= 0 {
		cfg.ConfThreshold = 0.3
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = 0.4
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Strategy{Attempts: 3, Delay: 2 * time.Second, Backoff: 2}
	}

	m := &Manager{cfg: cfg}
	m.newDetector = func(artifactPath string) (vision.Detector, error) {
		if err := vision.Initialize(); err != nil {
			return nil, err
		}
		return vision.NewONNXDetector(artifactPath, cfg.RecognizerPath, cfg.DetectionSize, cfg.ConfThreshold, cfg.NMSThreshold)
	}
	m.newSwapper = func(artifactPath string) (vision.Swapper, error) {
		if err := vision.Initialize(); err != nil {
			return nil, err
		}
		return vision.NewONNXSwapper(artifactPath)
	}
	return m
}

// AcquireDetector returns the process-wide detection handle, constructing
// it on first call. Concurrent first callers block on the mutex; exactly
// one load runs and all observe the same handle. A failed load is not
// cached - the next caller retries.
func (m *Manager) AcquireDetector(ctx context.Context) (*DetectorHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detector != nil {
		return m.detector, nil
	}

	artifact, err := resolveArtifact(ctx, "detector", m.cfg.DetectorPaths, m.cfg.DetectorURL, m.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrModelUnavailable, err)
	}

	det, err := m.newDetector(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: loading detector from %s: %s", model.ErrModelUnavailable, artifact, err)
	}

	m.detector = &DetectorHandle{
		Handle:   Handle{Capability: CapDetection, ArtifactPath: artifact, LoadedAt: time.Now()},
		Detector: det,
	}
	zlog.Logger.Info().Str("artifact", artifact).Msg("Detection model loaded")
	return m.detector, nil
}

// AcquireSwapper returns the process-wide swap handle, same contract as
// AcquireDetector.
func (m *Manager) AcquireSwapper(ctx context.Context) (*SwapperHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.swapper != nil {
		return m.swapper, nil
	}

	artifact, err := resolveArtifact(ctx, "swapper", m.cfg.SwapperPaths, m.cfg.SwapperURL, m.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrModelUnavailable, err)
	}

	sw, err := m.newSwapper(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: loading swapper from %s: %s", model.ErrModelUnavailable, artifact, err)
	}

	m.swapper = &SwapperHandle{
		Handle:  Handle{Capability: CapSwap, ArtifactPath: artifact, LoadedAt: time.Now()},
		Swapper: sw,
	}
	zlog.Logger.Info().Str("artifact", artifact).Msg("Swap model loaded")
	return m.swapper, nil
}

// AcquireReferenceFace loads and caches the fixed identity image. Needs
// the detector, so it may trigger detector construction.
func (m *Manager) AcquireReferenceFace(ctx context.Context) (*ReferenceFace, error) {
	det, err := m.AcquireDetector(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ref != nil {
		return m.ref, nil
	}

	raw, err := os.ReadFile(m.cfg.ReferencePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrReferenceFaceMissing, m.cfg.ReferencePath)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image at %s", model.ErrReferenceFaceMissing, m.cfg.ReferencePath)
	}

	nrgba := imaging.Clone(img)
	faces, err := det.Detect(nrgba)
	if err != nil {
		return nil, fmt.Errorf("%w: detection on reference image: %s", model.ErrReferenceFaceMissing, err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("%w: no face found in %s", model.ErrReferenceFaceMissing, m.cfg.ReferencePath)
	}

	emb, err := det.Embed(nrgba, faces[0])
	if err != nil {
		return nil, fmt.Errorf("%w: embedding reference face: %s", model.ErrReferenceFaceMissing, err)
	}

	m.ref = &ReferenceFace{Bytes: raw, Face: faces[0], Embedding: emb}
	zlog.Logger.Info().Str("path", m.cfg.ReferencePath).Msg("Reference face loaded")
	return m.ref, nil
}

// Reset drops all loaded handles so the next acquire reloads them. Held
// handles stay usable; Reset never tears down a handle another request
// may still be using.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detector = nil
	m.swapper = nil
	m.ref = nil
}

// Close releases loaded capabilities. Call only on shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.detector != nil {
		err = m.detector.Detector.Close()
		m.detector = nil
	}
	if m.swapper != nil {
		if sErr := m.swapper.Swapper.Close(); err == nil {
			err = sErr
		}
		m.swapper = nil
	}
	m.ref = nil
	return err
}
