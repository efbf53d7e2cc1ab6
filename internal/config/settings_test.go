package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	settings, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Load with missing file should not fail, got %v", err)
	}

	if settings.GetMaxParallelDownloads() != DefaultMaxParallel {
		t.Errorf("Expected default max parallel %d, got %d",
			DefaultMaxParallel, settings.GetMaxParallelDownloads())
	}
	if settings.GetQualityPreset() != DefaultQuality {
		t.Errorf("Expected default quality %s, got %s",
			DefaultQuality, settings.GetQualityPreset())
	}
	if settings.GetOutputDirectory() != filepath.Join(dir, DefaultOutputDir) {
		t.Errorf("Expected output dir beside config, got %s", settings.GetOutputDirectory())
	}
	if settings.GetPartialDirectory() != filepath.Join(dir, DefaultPartialDir) {
		t.Errorf("Expected partial dir beside config, got %s", settings.GetPartialDirectory())
	}
}

func TestLoad_PartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"max_concurrent_downloads": 5}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if settings.GetMaxParallelDownloads() != 5 {
		t.Errorf("Expected max parallel 5, got %d", settings.GetMaxParallelDownloads())
	}
	// Unset fields keep defaults
	if settings.GetQualityPreset() != DefaultQuality {
		t.Errorf("Expected default quality, got %s", settings.GetQualityPreset())
	}
	if settings.GetMP3Bitrate() != DefaultMP3Bitrate {
		t.Errorf("Expected default mp3 bitrate, got %s", settings.GetMP3Bitrate())
	}
}

func TestLoad_ClampsOutOfRangeValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"max_concurrent_downloads": 50, "quality": "4320"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := settings.GetMaxParallelDownloads(); got != MaxParallel {
		t.Errorf("Max parallel from file should be clamped to %d, got %d", MaxParallel, got)
	}
	if got := settings.GetQualityPreset(); got != QualityBest {
		t.Errorf("Unknown quality preset from file should fall back to best, got %s", got)
	}
}

func TestLoad_NegativeMaxParallel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"max_concurrent_downloads": -3}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := settings.GetMaxParallelDownloads(); got != DefaultMaxParallel {
		t.Errorf("Non-positive max parallel should use the default %d, got %d", DefaultMaxParallel, got)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid JSON config")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	settings.SetOutputDirectory("/custom/downloads")
	settings.SetMaxParallelDownloads(4)
	settings.SetSpeedLimit("2M")
	settings.SetQualityPreset(Quality720p)

	if err := settings.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if reloaded.GetOutputDirectory() != "/custom/downloads" {
		t.Errorf("Expected output dir /custom/downloads, got %s", reloaded.GetOutputDirectory())
	}
	if reloaded.GetMaxParallelDownloads() != 4 {
		t.Errorf("Expected max parallel 4, got %d", reloaded.GetMaxParallelDownloads())
	}
	if reloaded.GetSpeedLimit() != "2M" {
		t.Errorf("Expected speed limit 2M, got %s", reloaded.GetSpeedLimit())
	}
	if reloaded.GetQualityPreset() != Quality720p {
		t.Errorf("Expected quality 720, got %s", reloaded.GetQualityPreset())
	}

	// File is valid indented JSON
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Saved config is not valid JSON: %v", err)
	}
}

func TestSetMaxParallelDownloads_Clamping(t *testing.T) {
	dir := t.TempDir()
	settings, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	settings.SetMaxParallelDownloads(0)
	if settings.GetMaxParallelDownloads() != MinParallel {
		t.Errorf("Max parallel should be clamped to %d, got %d",
			MinParallel, settings.GetMaxParallelDownloads())
	}

	settings.SetMaxParallelDownloads(100)
	if settings.GetMaxParallelDownloads() != MaxParallel {
		t.Errorf("Max parallel should be clamped to %d, got %d",
			MaxParallel, settings.GetMaxParallelDownloads())
	}
}

func TestSetQualityPreset_Invalid(t *testing.T) {
	dir := t.TempDir()
	settings, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	settings.SetQualityPreset(QualityPreset("4320"))
	if settings.GetQualityPreset() != QualityBest {
		t.Errorf("Invalid preset should fall back to best, got %s", settings.GetQualityPreset())
	}
}
