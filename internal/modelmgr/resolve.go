package modelmgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

var artifactClient = &http.Client{Timeout: 10 * time.Minute}

// resolveArtifact walks the ordered candidate paths and returns the first
// one holding a non-empty file. On miss it downloads the artifact from
// remoteURL into the first writable candidate directory and re-validates.
func resolveArtifact(ctx context.Context, name string, candidates []string, remoteURL string, strategy retry.Strategy) (string, error) {
	for _, path := range candidates {
		if validArtifact(path) {
			zlog.Logger.Debug().Str("model", name).Str("path", path).Msg("Found model artifact")
			return path, nil
		}
	}

	if remoteURL == "" {
		return "", fmt.Errorf("%s artifact not found in %v and no remote source configured", name, candidates)
	}

	target := firstWritable(candidates)
	if target == "" {
		return "", fmt.Errorf("no writable location for %s artifact among %v", name, candidates)
	}

	zlog.Logger.Info().Str("model", name).Str("url", remoteURL).Str("target", target).
		Msg("Model artifact not found locally, downloading")

	delay := strategy.Delay
	var err error
	for attempt := 1; attempt <= strategy.Attempts; attempt++ {
		if err = download(ctx, remoteURL, target); err == nil {
			break
		}
		zlog.Logger.Warn().Err(err).Int("attempt", attempt).Str("model", name).
			Msg("Artifact download failed")
		if attempt < strategy.Attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * strategy.Backoff)
		}
	}
	if err != nil {
		return "", fmt.Errorf("downloading %s artifact: %w", name, err)
	}

	if !validArtifact(target) {
		return "", fmt.Errorf("downloaded %s artifact at %s failed validation", name, target)
	}

	return target, nil
}

func validArtifact(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// firstWritable returns the first candidate whose directory exists or can
// be created and is writable.
func firstWritable(candidates []string) string {
	for _, path := range candidates {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		probe, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			continue
		}
		probe.Close()
		os.Remove(probe.Name())
		return path
	}
	return ""
}

// download fetches the artifact into a temp file next to target and
// renames it into place, so a partial download never passes validation.
func download(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := artifactClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}
