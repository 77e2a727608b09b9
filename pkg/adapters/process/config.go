package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/aretw0/ason/pkg/domain"
)

// ExecutorName is the file name of the executor binary.
const ExecutorName = "ason-executor"

// DefaultStopGrace is how long Stop waits for a clean exit before killing the tree.
const DefaultStopGrace = 2 * time.Second

// Config describes how the executor is launched.
type Config struct {
	Mode         domain.ExecutionMode `yaml:"mode" json:"mode"`
	ExecutorPath string               `yaml:"executor_path" json:"executor_path"`
	Runtime      string               `yaml:"runtime" json:"runtime"`
	Image        string               `yaml:"image" json:"image"`
	Args         []string             `yaml:"args" json:"args"`
	Env          []string             `yaml:"env" json:"env"`
	StopGrace    time.Duration        `yaml:"stop_grace" json:"stop_grace"`
}

// Command returns the program and arguments for cfg.
func (cfg Config) Command() (string, []string, error) {
	switch cfg.Mode {
	case domain.ModeContainer:
		if cfg.Image == "" {
			return "", nil, errors.New("container mode requires an image")
		}
		rt := cfg.Runtime
		if rt == "" {
			rt = "docker"
		}
		args := []string{"run", "--rm", "-i"}
		args = append(args, cfg.Args...)
		args = append(args, cfg.Image)
		return rt, args, nil
	case domain.ModeProcess:
		path, err := ResolveExecutor(cfg.ExecutorPath)
		if err != nil {
			return "", nil, err
		}
		return path, cfg.Args, nil
	default:
		return "", nil, fmt.Errorf("mode %s has no external process", cfg.Mode)
	}
}

// ResolveExecutor finds the executor binary: the explicit path if given, else
// next to the running executable, else on $PATH.
func ResolveExecutor(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("executor not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}

	name := ExecutorName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("executor %s not found next to the binary or on PATH: %w", name, err)
	}
	return path, nil
}
