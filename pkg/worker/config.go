package worker

import (
	"os"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Minute
	defaultWaitDelay = 5 * time.Second
)

type Config struct {
	// Command is the executable, Args are fixed leading arguments (usually
	// the script). The image path is always appended as the last argument.
	Command string
	Args    []string

	// RequiredFiles must all exist before a worker is launched: the
	// script, model weights, dataset config.
	RequiredFiles []string

	Timeout   time.Duration
	WaitDelay time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Command:   os.Getenv("WORKER_COMMAND"),
		Args:      strings.Fields(os.Getenv("WORKER_ARGS")),
		Timeout:   defaultTimeout,
		WaitDelay: defaultWaitDelay,
	}

	if cfg.Command == "" {
		cfg.Command = "python3"
	}

	for _, f := range strings.Split(os.Getenv("WORKER_REQUIRED_FILES"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			cfg.RequiredFiles = append(cfg.RequiredFiles, f)
		}
	}

	if d, err := time.ParseDuration(os.Getenv("WORKER_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}

	return cfg
}
