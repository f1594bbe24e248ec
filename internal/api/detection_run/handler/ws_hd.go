package detectionRunHandler

import (
	"AppealRecognition/internal/entity"
	"AppealRecognition/internal/middleware"
	contextPkg "AppealRecognition/pkg/context"
	"AppealRecognition/pkg/handlerUtil"
	"AppealRecognition/pkg/response"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const wsWriteTimeout = 10 * time.Second

// handleRunStatusWebSocket pushes the run view whenever it changes and closes
// once the run is terminal.
func (h *DetectionRunHandler) handleRunStatusWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	runID := c.Params("id")
	fields := logrus.Fields{
		"request_id": requestID,
		"run_id":     runID,
	}

	h.log.WithFields(fields).Debug("Run status WebSocket client connected")
	defer h.log.WithFields(fields).Debug("Run status WebSocket client disconnected")

	user, ok := c.Locals("user").(entity.UserLoginData)
	if !ok {
		h.closeWithError(c, fields, websocket.ClosePolicyViolation, "Unauthorized")
		return
	}

	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))
	defer cancel()

	// The client sends nothing; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last entity.DetectionRun
	for {
		run, err := h.detectionRunService.GetRun(ctx, user.ID, runID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.closeWithError(c, fields, websocket.CloseNormalClosure, publicMessage(err))
			return
		}

		if run.Status != last.Status || !run.UpdatedAt.Equal(last.UpdatedAt) {
			if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := c.WriteJSON(toRunResponse(run)); err != nil {
				h.log.WithFields(fields).WithField("error", err.Error()).Debug("Run status write failed")
				return
			}
			last = run
		}

		if run.Status.IsTerminal() {
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)),
				time.Now().Add(wsWriteTimeout))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *DetectionRunHandler) closeWithError(c *websocket.Conn, fields logrus.Fields, code int, message string) {
	h.log.WithFields(fields).WithField("message", message).Warn("Closing run status WebSocket")

	_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.WriteJSON(handlerUtil.ErrorResponse{Error: message})
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, message),
		time.Now().Add(wsWriteTimeout))
}

func publicMessage(err error) string {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Error()
	}
	return "An unexpected error occurred"
}
