package daemon

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig_SensibleDefaults(t *testing.T) {
	t.Setenv("TUTUD_HOME", t.TempDir())
	cfg := DefaultConfig()

	if cfg.API.Port != 8765 {
		t.Errorf("API.Port = %d, want 8765", cfg.API.Port)
	}
	if cfg.Gateway.ContainerRuntime != "docker" {
		t.Errorf("ContainerRuntime = %q, want docker", cfg.Gateway.ContainerRuntime)
	}
	if cfg.Gateway.MaxOrchestrations != 10 {
		t.Errorf("MaxOrchestrations = %d, want 10", cfg.Gateway.MaxOrchestrations)
	}
	if cfg.Sidecar.OllamaHost != "http://127.0.0.1:11434" {
		t.Errorf("OllamaHost = %q, want default", cfg.Sidecar.OllamaHost)
	}
}

func TestLoadConfig_FallsBackToDefaultsWhenNoFile(t *testing.T) {
	t.Setenv("TUTUD_HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("TUTUD_CONTAINER_RUNTIME", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8765 {
		t.Errorf("API.Port = %d, want default 8765", cfg.API.Port)
	}
}

func TestLoadConfig_ReadsSavedFile(t *testing.T) {
	t.Setenv("TUTUD_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9999
	cfg.Gateway.ContainerRuntime = "podman"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", loaded.API.Port)
	}
	if loaded.Gateway.ContainerRuntime != "podman" {
		t.Errorf("ContainerRuntime = %q, want podman", loaded.Gateway.ContainerRuntime)
	}
}

func TestApplyEnvOverrides_WinsOverFile(t *testing.T) {
	t.Setenv("TUTUD_HOME", t.TempDir())
	t.Setenv("OLLAMA_HOST", "http://env-override:11434")
	t.Setenv("TUTUD_CONTAINER_RUNTIME", "podman")

	cfg := DefaultConfig()
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.Sidecar.OllamaHost != "http://env-override:11434" {
		t.Errorf("OllamaHost = %q, want env override", loaded.Sidecar.OllamaHost)
	}
	if loaded.Gateway.ContainerRuntime != "podman" {
		t.Errorf("ContainerRuntime = %q, want podman", loaded.Gateway.ContainerRuntime)
	}
}

func TestGatewayHome_HonorsEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TUTUD_HOME", dir)

	if got := GatewayHome(); got != dir {
		t.Errorf("GatewayHome() = %q, want %q", got, dir)
	}
}

func TestDefaultConfig_LogFileUnderHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TUTUD_HOME", dir)

	cfg := DefaultConfig()
	want := filepath.Join(dir, "gateway.log")
	if cfg.Logging.File != want {
		t.Errorf("Logging.File = %q, want %q", cfg.Logging.File, want)
	}
}
