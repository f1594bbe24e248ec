package middleware

import (
	jwtPkg "AppealRecognition/pkg/jwt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
	// WebSocketTokenQuery carries the access token on websocket handshakes,
	// where browsers cannot set an Authorization header.
	WebSocketTokenQuery = "access_token"
)

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	return m.authenticate(ctx, func() (*jwt.Token, error) {
		return jwtPkg.VerifyTokenHeader(ctx, AccessTokenSecret)
	})
}

// NewWebSocketTokenMiddleware accepts the token from the access_token query
// parameter and falls back to the Authorization header.
func (m *middleware) NewWebSocketTokenMiddleware(ctx *fiber.Ctx) error {
	return m.authenticate(ctx, func() (*jwt.Token, error) {
		if token := ctx.Query(WebSocketTokenQuery); token != "" {
			return jwtPkg.ParseToken(token, os.Getenv(AccessTokenSecret))
		}
		return jwtPkg.VerifyTokenHeader(ctx, AccessTokenSecret)
	})
}

func (m *middleware) authenticate(ctx *fiber.Ctx, verify func() (*jwt.Token, error)) error {
	fields := logrus.Fields{
		"request_id": m.GetRequestID(ctx),
		"path":       ctx.Path(),
		"method":     ctx.Method(),
		"client_ip":  ctx.IP(),
	}

	userToken, err := verify()
	if err != nil {
		m.log.WithFields(fields).WithField("error", err.Error()).Warn("Token verification failed")
		return unauthorized(ctx)
	}

	claims, ok := userToken.Claims.(jwt.MapClaims)
	if !ok {
		m.log.WithFields(fields).Warn("Invalid token claims")
		return unauthorized(ctx)
	}

	user, err := jwtPkg.UserFromClaims(claims)
	if err != nil {
		m.log.WithFields(fields).WithField("error", err.Error()).Warn("Token claims check")
		return unauthorized(ctx)
	}
	ctx.Locals("user", user)

	m.log.WithFields(fields).WithField("user_id", user.ID).Debug("Authentication successful")
	return ctx.Next()
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized, access token invalid or expired",
	})
}
