package handlerUtil

import (
	"AppealRecognition/pkg/response"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, err error) (int, ErrorResponse) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := New(logger)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return handler.Handle(c, "req-1", err, c.Path(), "test")
	})

	resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	var body ErrorResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandle_ResponseError(t *testing.T) {
	notFound := response.NewError(http.StatusNotFound, "detection run not found")

	status, body := serve(t, notFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "detection run not found", body.Error)
}

func TestHandle_FiberError(t *testing.T) {
	status, body := serve(t, fiber.NewError(http.StatusRequestEntityTooLarge, "Request Entity Too Large"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "Request Entity Too Large", body.Error)
}

func TestHandle_UnknownErrorIsHidden(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	status, body := serve(t, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "An unexpected error occurred", body.Error)
	assert.Equal(t, "req-1", body.TraceID)
}
