package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// writeScript creates a shell script that acts as the detection worker.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newScriptInvoker(script string, timeout time.Duration, required ...string) IWorker {
	return New(Config{
		Command:       "sh",
		Args:          []string{script},
		RequiredFiles: required,
		Timeout:       timeout,
		WaitDelay:     time.Second,
	}, newTestLogger())
}

func TestInvoke_BackgroundChildKeepsStderrOpen(t *testing.T) {
	script := writeScript(t, `
sleep 3 &
echo "RESULT_BEGIN {\"result_image_path\":\"/tmp/out.jpg\",\"detections\":[{\"class\":\"shirt\",\"confidence\":0.87,\"bbox\":[1,2,3,4],\"cropped_image\":\"c1.jpg\"}]} RESULT_END" >&2
exit 0
`)
	w := New(Config{
		Command:   "sh",
		Args:      []string{script},
		Timeout:   10 * time.Second,
		WaitDelay: 300 * time.Millisecond,
	}, newTestLogger())

	start := time.Now()
	result, err := w.Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out.jpg", result.ResultImagePath)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "c1.jpg", result.Detections[0].CroppedImage)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestInvoke_Success(t *testing.T) {
	script := writeScript(t, `
echo "loading model" >&2
echo "stdout chatter"
echo "RESULT_BEGIN" >&2
echo "{\"result_image_path\":\"$RUN_DIR/out.jpg\",\"detections\":[{\"class\":\"shirt\",\"confidence\":0.87,\"bbox\":[1,2,3,4],\"cropped_image\":\"c1.jpg\"}]}" >&2
echo "RESULT_END" >&2
echo "image was $1" >&2
`)
	workDir := t.TempDir()

	result, err := newScriptInvoker(script, 10*time.Second).Invoke(context.Background(), Job{
		RunID:     "run-1",
		ImagePath: filepath.Join(workDir, "upload.jpg"),
		WorkDir:   workDir,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workDir, "out.jpg"), result.ResultImagePath)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "shirt", result.Detections[0].Label)
}

func TestInvoke_PassesAbsoluteImagePath(t *testing.T) {
	script := writeScript(t, `
echo "RESULT_BEGIN {\"result_image_path\":\"$1\"} RESULT_END" >&2
`)

	result, err := newScriptInvoker(script, 10*time.Second).Invoke(context.Background(), Job{
		RunID:     "run-1",
		ImagePath: "relative/upload.jpg",
	})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(result.ResultImagePath))
	assert.Equal(t, "upload.jpg", filepath.Base(result.ResultImagePath))
}

func TestInvoke_NonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo "CUDA out of memory" >&2
exit 1
`)

	_, err := newScriptInvoker(script, 10*time.Second).Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFailed))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Contains(t, exitErr.Output, "CUDA out of memory")
}

func TestInvoke_ExitZeroWithoutMarkers(t *testing.T) {
	script := writeScript(t, `echo "done, nothing to report" >&2`)

	_, err := newScriptInvoker(script, 10*time.Second).Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestInvoke_Timeout(t *testing.T) {
	script := writeScript(t, `
echo "warming up" >&2
sleep 30
`)

	start := time.Now()
	_, err := newScriptInvoker(script, 200*time.Millisecond).Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 10*time.Second)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 200*time.Millisecond, timeoutErr.Timeout)
}

func TestInvoke_CallerCanceled(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := newScriptInvoker(script, 10*time.Second).Invoke(ctx, Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCanceled))
}

func TestInvoke_MissingRequiredFile(t *testing.T) {
	script := writeScript(t, `echo "should not run" >&2; exit 3`)
	missing := filepath.Join(t.TempDir(), "trained_YOLO8.pt")

	_, err := newScriptInvoker(script, 10*time.Second, script, missing).Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDependency))
	assert.Contains(t, err.Error(), "trained_YOLO8.pt")
}

func TestInvoke_CommandNotFound(t *testing.T) {
	w := New(Config{Command: "definitely-not-a-detector-binary", Timeout: time.Second}, newTestLogger())

	_, err := w.Invoke(context.Background(), Job{RunID: "run-1", ImagePath: "/tmp/x.jpg"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDependency))
}

func TestLineCapture_SplitsLinesAndKeepsEverything(t *testing.T) {
	var lines []string
	c := newLineCapture(func(line string) { lines = append(lines, line) })

	_, _ = c.Write([]byte("first\r\nsec"))
	_, _ = c.Write([]byte("ond\nthird"))
	c.flush()

	assert.Equal(t, []string{"first", "second", "third"}, lines)
	assert.Equal(t, "first\r\nsecond\nthird", c.String())
}
