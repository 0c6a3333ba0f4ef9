package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FallbackVoice is advertised when no voice styles are installed.
const FallbackVoice = "M1"

// Assets locates the model and voice style directories under a data dir.
type Assets struct {
	ModelDir string
	StyleDir string
}

// LocateAssets looks for onnx/ and then assets/onnx/ under dataDir. A data
// dir without model files is an error.
func LocateAssets(dataDir string) (Assets, error) {
	candidates := []string{dataDir, filepath.Join(dataDir, "assets")}
	for _, base := range candidates {
		modelDir := filepath.Join(base, "onnx")
		if info, err := os.Stat(modelDir); err == nil && info.IsDir() {
			return Assets{ModelDir: modelDir, StyleDir: filepath.Join(base, "voice_styles")}, nil
		}
	}
	return Assets{}, fmt.Errorf("model folder 'onnx' not found in %s", dataDir)
}

// ScanVoices lists the voice ids in the style directory, sorted. The boolean
// is false when the directory is missing and the fallback voice is used.
func (a Assets) ScanVoices() ([]string, bool, error) {
	entries, err := os.ReadDir(a.StyleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{FallbackVoice}, false, nil
		}
		return nil, false, fmt.Errorf("read voice styles: %w", err)
	}
	var voices []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		voices = append(voices, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(voices)
	return voices, true, nil
}

// StylePath returns the style document for voice.
func (a Assets) StylePath(voice string) string {
	if a.StyleDir == "" {
		return ""
	}
	return filepath.Join(a.StyleDir, voice+".json")
}
