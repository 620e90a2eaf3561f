package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeModelFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write model file: %v", err)
	}
	return path
}

func TestLinearLoader(t *testing.T) {
	path := writeModelFile(t, "m.json", `{"weights":[1.0,-1.0],"bias":0.0}`)

	handle, err := LinearLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	out, err := handle.Predict([]float64{2.0, 2.0})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Expected [score, confidence], got %v", out)
	}
	// dot = 0, sigmoid(0) = 0.5
	if out[0] != 0.5 {
		t.Errorf("Expected score 0.5, got %f", out[0])
	}
	// No confidence weights configured
	if out[1] != 0.5 {
		t.Errorf("Expected default confidence 0.5, got %f", out[1])
	}
}

func TestLinearLoaderRejectsEmptyWeights(t *testing.T) {
	path := writeModelFile(t, "m.json", `{"weights":[],"bias":0.0}`)
	if _, err := LinearLoader().Load(path); err == nil {
		t.Error("Expected error for model with no weights")
	}
}

func TestLinearModelLengthMismatch(t *testing.T) {
	path := writeModelFile(t, "m.json", `{"weights":[1.0,2.0],"bias":0.0}`)
	handle, err := LinearLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := handle.Predict([]float64{1.0}); err == nil {
		t.Error("Expected error for mismatched feature length")
	}
}

func TestRulesLoader(t *testing.T) {
	path := writeModelFile(t, "m.rules", `{"index":0,"buy_above":70,"sell_below":30,"confidence":0.8}`)

	handle, err := RulesLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cases := []struct {
		value float64
		score float64
	}{
		{80, 0.8},
		{20, 0.2},
		{50, 0.5},
	}
	for _, tc := range cases {
		out, err := handle.Predict([]float64{tc.value})
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if out[0] != tc.score {
			t.Errorf("Value %f: expected score %f, got %f", tc.value, tc.score, out[0])
		}
		if out[1] != 0.8 {
			t.Errorf("Expected confidence 0.8, got %f", out[1])
		}
	}
}

func TestRulesLoaderRejectsBadConfidence(t *testing.T) {
	path := writeModelFile(t, "m.rules", `{"index":0,"buy_above":70,"sell_below":30,"confidence":1.5}`)
	if _, err := RulesLoader().Load(path); err == nil {
		t.Error("Expected error for confidence outside [0,1]")
	}
}

func TestRulesModelIndexOutOfRange(t *testing.T) {
	path := writeModelFile(t, "m.rules", `{"index":5,"buy_above":70,"sell_below":30,"confidence":0.8}`)
	handle, err := RulesLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := handle.Predict([]float64{1.0}); err == nil {
		t.Error("Expected error for out-of-range rule index")
	}
}

func TestRegistryLoadByExtension(t *testing.T) {
	registry := NewRegistry()

	linear := writeModelFile(t, "m.json", `{"weights":[1.0],"bias":0.0}`)
	if _, err := registry.Load(linear); err != nil {
		t.Errorf("Failed to load .json model: %v", err)
	}

	rules := writeModelFile(t, "m.rules", `{"index":0,"buy_above":1,"sell_below":0,"confidence":0.7}`)
	if _, err := registry.Load(rules); err != nil {
		t.Errorf("Failed to load .rules model: %v", err)
	}
}

func TestRegistryCachesHandles(t *testing.T) {
	registry := NewRegistry()
	path := writeModelFile(t, "m.json", `{"weights":[1.0],"bias":0.0}`)

	first, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Corrupt the file; a cached load must not re-read it
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to overwrite model file: %v", err)
	}

	second, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Cached load failed: %v", err)
	}
	if first != second {
		t.Error("Expected the cached handle on repeat load")
	}

	// After invalidation the corrupt file surfaces
	registry.Invalidate(path)
	if _, err := registry.Load(path); err == nil {
		t.Error("Expected error after cache invalidation")
	}
}

func TestRegistryUnknownExtensionFallback(t *testing.T) {
	registry := NewRegistry()

	// Valid linear model content under an unknown extension
	path := writeModelFile(t, "m.model", `{"weights":[1.0],"bias":0.0}`)
	if _, err := registry.Load(path); err != nil {
		t.Errorf("Expected fallback detection to succeed, got %v", err)
	}
}

func TestRegistryMissingFile(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Expected error for missing model file")
	}
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	registry := NewRegistry()
	path := writeModelFile(t, "m.bin", "\x00\x01garbage")
	_, err := registry.Load(path)
	if err == nil {
		t.Fatal("Expected error for unparseable model")
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}
