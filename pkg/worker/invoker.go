package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

type IWorker interface {
	Invoke(ctx context.Context, job Job) (RawResult, error)
}

type invoker struct {
	cfg Config
	log *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) IWorker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}

	return &invoker{
		cfg: cfg,
		log: log,
	}
}

// Invoke runs exactly one worker process for the job's image and returns the
// parsed result block from its diagnostic stream.
func (w *invoker) Invoke(ctx context.Context, job Job) (RawResult, error) {
	fields := logrus.Fields{
		"run_id": job.RunID,
		"image":  job.ImagePath,
	}

	if err := w.checkDependencies(); err != nil {
		w.log.WithFields(fields).WithError(err).Error("Worker dependency check failed")
		return RawResult{}, err
	}

	imagePath, err := filepath.Abs(job.ImagePath)
	if err != nil {
		return RawResult{}, fmt.Errorf("%w: resolve image path: %v", ErrFailed, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	args := make([]string, 0, len(w.cfg.Args)+1)
	args = append(args, w.cfg.Args...)
	args = append(args, imagePath)

	cmd := exec.CommandContext(runCtx, w.cfg.Command, args...)
	cmd.Env = append(os.Environ(), "RUN_ID="+job.RunID, "RUN_DIR="+job.WorkDir)
	cmd.WaitDelay = w.cfg.WaitDelay
	configureProcess(cmd)

	stderr := newLineCapture(func(line string) {
		w.log.WithFields(fields).WithField("stream", "stderr").Debug(line)
	})
	stdout := newLineCapture(func(line string) {
		w.log.WithFields(fields).WithField("stream", "stdout").Debug(line)
	})
	cmd.Stderr = stderr
	cmd.Stdout = stdout

	w.log.WithFields(fields).WithFields(logrus.Fields{
		"command": w.cfg.Command,
		"timeout": w.cfg.Timeout.String(),
	}).Info("Starting detection worker")

	err = cmd.Run()
	killProcessGroup(cmd)
	stderr.flush()
	stdout.flush()
	output := stderr.String()

	// A child left holding the worker's stderr makes Wait give up on I/O
	// after WaitDelay even though the worker itself exited cleanly.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		w.log.WithFields(fields).Warn("Detection worker left output open after exit")
		err = nil
	}

	if err == nil {
		w.log.WithFields(fields).Info("Detection worker finished")
		return Parse(output)
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return RawResult{}, fmt.Errorf("%w: %v", ErrMissingDependency, err)
	}

	if ctx.Err() != nil {
		w.log.WithFields(fields).Warn("Detection worker canceled by caller")
		return RawResult{}, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		w.log.WithFields(fields).Error("Detection worker timed out")
		return RawResult{}, &TimeoutError{Timeout: w.cfg.Timeout, Output: output}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		w.log.WithFields(fields).WithField("exit_code", exitErr.ExitCode()).Error("Detection worker failed")
		return RawResult{}, &ExitError{ExitCode: exitErr.ExitCode(), Output: output}
	}

	return RawResult{}, fmt.Errorf("%w: %v", ErrFailed, err)
}

func (w *invoker) checkDependencies() error {
	if w.cfg.Command == "" {
		return fmt.Errorf("%w: no worker command configured", ErrMissingDependency)
	}

	for _, path := range w.cfg.RequiredFiles {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingDependency, path)
		}
	}

	return nil
}
