package main

import (
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ryan-organically/roanoke-engine/internal/config"
)

func TestWriteConfigFromEnvJSON(t *testing.T) {
	t.Setenv(config.EnvConfigYAMLB64, "")

	cfg := config.Default()
	cfg.Generation.Seed = 777
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	t.Setenv(config.EnvConfigJSON, string(data))

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Generation.Seed != 777 {
		t.Fatalf("unexpected seed: %d", loaded.Generation.Seed)
	}
}

func TestWriteConfigFromEnvYAML(t *testing.T) {
	cfg := config.Default()
	cfg.Stream.LoadRadius = 4
	cfg.Stream.UnloadRadius = 6
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	t.Setenv(config.EnvConfigJSON, "")
	t.Setenv(config.EnvConfigYAMLB64, base64.StdEncoding.EncodeToString(data))

	path := filepath.Join(t.TempDir(), "config.yaml")
	wrote, err := writeConfigFromEnv(path)
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if !wrote {
		t.Fatalf("expected config to be written")
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.Stream.LoadRadius != 4 || loaded.Stream.UnloadRadius != 6 {
		t.Fatalf("unexpected stream radii: %+v", loaded.Stream)
	}
}

func TestWriteConfigFromEnvNoPayload(t *testing.T) {
	t.Setenv(config.EnvConfigJSON, "")
	t.Setenv(config.EnvConfigYAMLB64, "")

	wrote, err := writeConfigFromEnv(filepath.Join(t.TempDir(), "unused.json"))
	if err != nil {
		t.Fatalf("writeConfigFromEnv: %v", err)
	}
	if wrote {
		t.Fatalf("expected no config to be written")
	}
}

func TestWriteConfigFromEnvRequiresPath(t *testing.T) {
	t.Setenv(config.EnvConfigYAMLB64, "")
	t.Setenv(config.EnvConfigJSON, `{"generation":{"seed":1}}`)

	if _, err := writeConfigFromEnv(""); err == nil {
		t.Fatalf("expected an error without a config path")
	}
}
