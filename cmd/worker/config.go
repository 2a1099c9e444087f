package main

import (
	"os"
	"path/filepath"

	"github.com/wb-go/wbf/config"

	"github.com/lazylama/memeswap/internal/modelmgr"
)

// duplicated from cmd/api - may be worth extracting into a shared package
func modelConfig(appConfig *config.Config) modelmgr.Config {
	modelDir := appConfig.GetString("MODEL_DIR")
	if modelDir == "" {
		modelDir = "./models"
	}

	refPath := appConfig.GetString("REFERENCE_FACE")
	if refPath == "" {
		refPath = filepath.Join(modelDir, "reference.jpg")
	}

	return modelmgr.Config{
		DetectorPaths:  candidatePaths(modelDir, "det_10g.onnx"),
		DetectorURL:    appConfig.GetString("DETECTOR_URL"),
		RecognizerPath: filepath.Join(modelDir, "w600k_r50.onnx"),
		SwapperPaths:   candidatePaths(modelDir, "inswapper_128.onnx"),
		SwapperURL:     appConfig.GetString("SWAPPER_URL"),
		ReferencePath:  refPath,
	}
}

func candidatePaths(modelDir, name string) []string {
	paths := []string{filepath.Join(modelDir, name), filepath.Join("/models", name)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".memeswap", "models", name))
	}
	return paths
}
