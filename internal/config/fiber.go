package config

import (
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const defaultBodyLimit = 50 * 1024 * 1024

func NewFiber(logger *logrus.Logger) *fiber.App {
	bodyLimit := defaultBodyLimit
	if v, err := strconv.Atoi(os.Getenv("UPLOAD_MAX_BYTES")); err == nil && v > 0 {
		// Leave room for multipart framing around the image itself.
		bodyLimit = v + 1024*1024
	}

	app := fiber.New(
		fiber.Config{
			AppName:           "Appeal Recognition Backend",
			BodyLimit:         bodyLimit,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: os.Getenv("APP_ENV") == "development",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
		})

	logger.WithField("body_limit", bodyLimit).Debug("Fiber app configured")

	return app
}
