package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadWorkerRequiresField(t *testing.T) {
	t.Setenv("WORKER_FIELD", "")
	os.Unsetenv("WORKER_FIELD")
	if _, err := LoadWorker(); err == nil || !strings.Contains(err.Error(), "WORKER_FIELD") {
		t.Fatalf("expected missing WORKER_FIELD error, got %v", err)
	}
}

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("WORKER_FIELD", "worker_1")
	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("LoadWorker: %v", err)
	}
	if cfg.Field != "worker_1" || cfg.Port != 5000 {
		t.Errorf("unexpected identity: %+v", cfg)
	}
	if cfg.Redis.Queue != "job_queue" || cfg.Redis.Username != "default" || cfg.Redis.Events != "job_events" {
		t.Errorf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.MaxTestTimeout != 2500*time.Millisecond || cfg.DefaultTestTimeout != time.Second {
		t.Errorf("unexpected timeouts: %s %s", cfg.MaxTestTimeout, cfg.DefaultTestTimeout)
	}
	if cfg.ResultTTL != time.Minute || cfg.StatusTTL != time.Minute || cfg.CompileTimeout != 10*time.Second {
		t.Errorf("unexpected ttls: %+v", cfg)
	}
	if cfg.WorkDir == "" || cfg.Executor != "process" {
		t.Errorf("unexpected runtime defaults: %q %q", cfg.WorkDir, cfg.Executor)
	}
	if cfg.Docker.PythonImage == "" || cfg.Docker.MemoryMB != 256 {
		t.Errorf("unexpected docker defaults: %+v", cfg.Docker)
	}
}

func TestLoadWorkerOverrides(t *testing.T) {
	t.Setenv("WORKER_FIELD", "worker_2")
	t.Setenv("PORT", "6000")
	t.Setenv("MAX_PARALLEL", "4")
	t.Setenv("PING_URLS", "http://a/ping,http://b/ping")
	t.Setenv("CXXFLAGS", "-O0 -g")
	t.Setenv("DOCKER_PYTHON_IMAGE", "python:3.13")

	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("LoadWorker: %v", err)
	}
	if cfg.Port != 6000 || cfg.MaxParallel != 4 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.PingURLs) != 2 || cfg.PingURLs[1] != "http://b/ping" {
		t.Errorf("ping urls = %v", cfg.PingURLs)
	}
	if cfg.ToolchainConfig().CXXFlags != "-O0 -g" {
		t.Errorf("toolchain flags = %q", cfg.ToolchainConfig().CXXFlags)
	}
	if cfg.Docker.PythonImage != "python:3.13" {
		t.Errorf("docker image = %q", cfg.Docker.PythonImage)
	}
}

func TestLoadWorkerRejectsUnknownExecutor(t *testing.T) {
	t.Setenv("WORKER_FIELD", "worker_0")
	t.Setenv("EXECUTOR", "firecracker")
	if _, err := LoadWorker(); err == nil {
		t.Fatal("expected error for unknown executor")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != 8080 || len(cfg.Workers) != 3 || cfg.Workers[0] != "worker_0" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RatePerSec != 0.5 || cfg.RateBurst != 5 || cfg.JobTTL != 10*time.Minute {
		t.Errorf("unexpected limits: %+v", cfg)
	}
}
