// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dontdude/gograde/internal/toolchain"
)

// Redis is shared by every process that talks to the coordination store.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Username string `env:"REDIS_USERNAME" envDefault:"default"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Queue    string `env:"QUEUE_NAME" envDefault:"job_queue"`
	Events   string `env:"EVENTS_CHANNEL" envDefault:"job_events"`
}

// Log controls the slog handler.
type Log struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	NoColor bool   `env:"LOG_NO_COLOR" envDefault:"false"`
}

// Toolchain names the host compilers and interpreters.
type Toolchain struct {
	CXX      string `env:"CXX" envDefault:"g++"`
	CXXFlags string `env:"CXXFLAGS" envDefault:"-O2 -std=c++17"`
	CC       string `env:"CC" envDefault:"gcc"`
	CFlags   string `env:"CFLAGS" envDefault:"-O2"`
	Javac    string `env:"JAVAC" envDefault:"javac"`
	Java     string `env:"JAVA" envDefault:"java"`
	Python   string `env:"PYTHON" envDefault:"python3"`
	Node     string `env:"NODE" envDefault:"node"`
}

// Docker selects the images used when EXECUTOR=docker. The workspace is
// mounted at /work in each container.
type Docker struct {
	NativeImage string        `env:"NATIVE_IMAGE" envDefault:"gcc:14"`
	JVMImage    string        `env:"JVM_IMAGE" envDefault:"eclipse-temurin:21-jre"`
	PythonImage string        `env:"PYTHON_IMAGE" envDefault:"python:3.12-alpine"`
	NodeImage   string        `env:"NODE_IMAGE" envDefault:"node:22-alpine"`
	MemoryMB    int64         `env:"MEMORY_MB" envDefault:"256"`
	PullTimeout time.Duration `env:"PULL_TIMEOUT" envDefault:"2m"`
}

// Worker is the grading worker's configuration.
type Worker struct {
	Field string `env:"WORKER_FIELD,required"`
	Port  int    `env:"PORT" envDefault:"5000"`

	Redis Redis
	Log   Log

	PollBlock          time.Duration `env:"POLL_BLOCK" envDefault:"5s"`
	WorkDir            string        `env:"WORK_DIR"`
	CompileTimeout     time.Duration `env:"COMPILE_TIMEOUT" envDefault:"10s"`
	MaxTestTimeout     time.Duration `env:"MAX_TEST_TIMEOUT" envDefault:"2500ms"`
	DefaultTestTimeout time.Duration `env:"DEFAULT_TEST_TIMEOUT" envDefault:"1s"`
	DefaultOutputKB    int64         `env:"DEFAULT_OUTPUT_KB" envDefault:"1024"`
	ResultTTL          time.Duration `env:"RESULT_TTL" envDefault:"60s"`
	StatusTTL          time.Duration `env:"STATUS_TTL" envDefault:"60s"`
	MaxParallel        int           `env:"MAX_PARALLEL" envDefault:"0"`

	Executor  string `env:"EXECUTOR" envDefault:"process"`
	Toolchain Toolchain
	Docker    Docker `envPrefix:"DOCKER_"`

	HistoryDB    string        `env:"HISTORY_DB"`
	PingURLs     []string      `env:"PING_URLS" envSeparator:","`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"10m"`
}

// Server is the submission front door's configuration.
type Server struct {
	Port int `env:"PORT" envDefault:"8080"`

	Redis Redis
	Log   Log

	Workers        []string      `env:"WORKERS" envSeparator:"," envDefault:"worker_0,worker_1,worker_2"`
	JobTTL         time.Duration `env:"JOB_TTL" envDefault:"10m"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RatePerSec     float64       `env:"RATE_PER_SEC" envDefault:"0.5"`
	RateBurst      int           `env:"RATE_BURST" envDefault:"5"`
}

func loadDotEnv() {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()
}

// LoadWorker reads and validates the worker configuration.
func LoadWorker() (Worker, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Worker]()
	if err != nil {
		return Worker{}, fmt.Errorf("load worker config: %w", err)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Executor != "process" && cfg.Executor != "docker" {
		return Worker{}, fmt.Errorf("load worker config: EXECUTOR must be process or docker, got %q", cfg.Executor)
	}
	if cfg.PollBlock <= 0 {
		return Worker{}, fmt.Errorf("load worker config: POLL_BLOCK must be positive")
	}
	return cfg, nil
}

// LoadServer reads and validates the server configuration.
func LoadServer() (Server, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	if len(cfg.Workers) == 0 {
		return Server{}, fmt.Errorf("load server config: WORKERS must name at least one worker")
	}
	return cfg, nil
}

// ToolchainConfig maps the environment onto the language registry settings.
func (w Worker) ToolchainConfig() toolchain.Config {
	t := w.Toolchain
	return toolchain.Config{
		CXX:      t.CXX,
		CXXFlags: t.CXXFlags,
		CC:       t.CC,
		CFlags:   t.CFlags,
		Javac:    t.Javac,
		Java:     t.Java,
		Python:   t.Python,
		Node:     t.Node,
	}
}
