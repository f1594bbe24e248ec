package detectionRunService

import (
	"AppealRecognition/internal/entity"
	"AppealRecognition/pkg/s3"
	"AppealRecognition/pkg/worker"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type fakeWorker struct {
	mu     sync.Mutex
	jobs   []worker.Job
	invoke func(ctx context.Context, job worker.Job) (worker.RawResult, error)
}

func (w *fakeWorker) Invoke(ctx context.Context, job worker.Job) (worker.RawResult, error) {
	w.mu.Lock()
	w.jobs = append(w.jobs, job)
	w.mu.Unlock()
	return w.invoke(ctx, job)
}

// writeOutputs lays files out the way the real worker does: a detected image
// and a cropped/ directory next to it.
func writeOutputs(dir string, crops ...string) (string, error) {
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(filepath.Join(outDir, "cropped"), 0o750); err != nil {
		return "", err
	}

	resultPath := filepath.Join(outDir, "detected.jpg")
	if err := os.WriteFile(resultPath, []byte("detected"), 0o640); err != nil {
		return "", err
	}

	for _, c := range crops {
		if err := os.WriteFile(filepath.Join(outDir, "cropped", c), []byte("crop "+c), 0o640); err != nil {
			return "", err
		}
	}
	return resultPath, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey func(key string) bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(ctx context.Context, localPath string, key string) (entity.ArtifactRef, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return entity.ArtifactRef{}, fmt.Errorf("%w: %v", s3.ErrLocalRead, err)
	}
	if f.failKey != nil && f.failKey(key) {
		return entity.ArtifactRef{}, fmt.Errorf("%w: connection refused", s3.ErrStorageUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data

	return entity.ArtifactRef{Key: key, URL: "https://bucket.s3.example.com/" + key}, nil
}

func (f *fakeStore) PresignUrl(key string) (string, error) {
	return "https://bucket.s3.example.com/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeCache struct {
	mu   sync.Mutex
	runs map[string]entity.DetectionRun
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{runs: map[string]entity.DetectionRun{}}
}

func (c *fakeCache) SetRun(ctx context.Context, run entity.DetectionRun, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if !run.Status.IsTerminal() {
		return fmt.Errorf("refusing to cache run %s in status %s", run.ID, run.Status)
	}
	c.runs[run.ID] = run
	return nil
}

func (c *fakeCache) GetRun(ctx context.Context, runID string) (entity.DetectionRun, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return entity.DetectionRun{}, false, c.err
	}
	run, ok := c.runs[runID]
	return run, ok, nil
}
