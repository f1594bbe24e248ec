package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to classify the file as PNG.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type recordedPut struct {
	path        string
	contentType string
	body        []byte
}

func newFakeS3(t *testing.T, status int) (*httptest.Server, *[]recordedPut) {
	t.Helper()

	var (
		mu   sync.Mutex
		puts []recordedPut
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: body})
		mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`))
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, &puts
}

func newTestClient(t *testing.T, endpoint string) ItfS3 {
	t.Helper()

	client, err := NewWithConfig(Config{
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		BucketName:      "artifacts",
		Endpoint:        endpoint,
	})
	require.NoError(t, err)
	return client
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestPut_UploadsUnderKey(t *testing.T) {
	srv, puts := newFakeS3(t, http.StatusOK)
	client := newTestClient(t, srv.URL)
	local := writeFile(t, "detected.png", pngHeader)

	ref, err := client.Put(context.Background(), local, "users/u1/runs/r1/detected_a.png")
	require.NoError(t, err)

	assert.Equal(t, "users/u1/runs/r1/detected_a.png", ref.Key)
	assert.Equal(t, srv.URL+"/artifacts/users/u1/runs/r1/detected_a.png", ref.URL)

	require.Len(t, *puts, 1)
	put := (*puts)[0]
	assert.Equal(t, "/artifacts/users/u1/runs/r1/detected_a.png", put.path)
	assert.Equal(t, "image/png", put.contentType)
	assert.Equal(t, pngHeader, put.body)

	_, err = os.Stat(local)
	assert.NoError(t, err, "local file must be left in place")
}

func TestPut_FallsBackToJPEGContentType(t *testing.T) {
	srv, puts := newFakeS3(t, http.StatusOK)
	client := newTestClient(t, srv.URL)
	local := writeFile(t, "crop.jpg", []byte("not really an image"))

	_, err := client.Put(context.Background(), local, "k")
	require.NoError(t, err)

	require.Len(t, *puts, 1)
	assert.Equal(t, "image/jpeg", (*puts)[0].contentType)
}

func TestPut_MissingLocalFile(t *testing.T) {
	srv, puts := newFakeS3(t, http.StatusOK)
	client := newTestClient(t, srv.URL)

	_, err := client.Put(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocalRead))
	assert.Empty(t, *puts)
}

func TestPut_RemoteRejects(t *testing.T) {
	srv, puts := newFakeS3(t, http.StatusInternalServerError)
	client := newTestClient(t, srv.URL)
	local := writeFile(t, "a.jpg", []byte("data"))

	_, err := client.Put(context.Background(), local, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.Len(t, *puts, 1, "no internal retry")
}

func TestPut_RemoteUnreachable(t *testing.T) {
	srv, _ := newFakeS3(t, http.StatusOK)
	endpoint := srv.URL
	srv.Close()

	client := newTestClient(t, endpoint)
	local := writeFile(t, "a.jpg", []byte("data"))

	_, err := client.Put(context.Background(), local, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
}

func TestPresignUrl_SignsWithoutContactingStore(t *testing.T) {
	srv, requests := newFakeS3(t, http.StatusOK)
	client := newTestClient(t, srv.URL)

	signed, err := client.PresignUrl("users/u1/runs/r1/cropped/c1.jpg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(signed, srv.URL+"/artifacts/users/u1/runs/r1/cropped/c1.jpg?"), signed)
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.Contains(t, signed, "X-Amz-Expires=900")
	assert.Empty(t, *requests)
}

func TestNewWithConfig_RequiresBucket(t *testing.T) {
	_, err := NewWithConfig(Config{Region: "us-east-1"})
	assert.Error(t, err)
}
