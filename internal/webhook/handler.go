// Package webhook receives the chat platform's event-subscription
// callbacks and dispatches them to the file stager or the analysis
// pipeline. Staging and pipeline runs are both detached so the webhook
// response never waits on them.
package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxBodyBytes int64 = 1 << 20 // 1 MiB

type fileDownloader interface {
	DownloadFile(ctx context.Context, messageID, fileKey string) ([]byte, error)
}

type fileStager interface {
	Stage(ctx context.Context, conversationID, messageID, fileName string, data []byte) error
}

type triggerDetector interface {
	Matches(text string) bool
}

type pipelineRunner interface {
	Run(ctx context.Context, conversationID, replyMessageID string)
}

// Handler receives Lark event-subscription callbacks.
type Handler struct {
	logger            *slog.Logger
	verificationToken string
	files             fileDownloader
	stager            fileStager
	detector          triggerDetector
	runner            pipelineRunner
}

// NewHandler creates the public webhook handler. An empty
// verificationToken disables the token check.
func NewHandler(log *slog.Logger, verificationToken string, files fileDownloader, stager fileStager, detector triggerDetector, runner pipelineRunner) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		logger:            log.With(slog.String("handler", "webhook")),
		verificationToken: strings.TrimSpace(verificationToken),
		files:             files,
		stager:            stager,
		detector:          detector,
		runner:            runner,
	}
}

// Register registers webhook callback routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/webhook/lark", h.HandleProbe)
	e.POST("/webhook/lark", h.Handle)
}

// HandleProbe responds to health/probe requests on the webhook URL.
func (h *Handler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle processes one webhook callback.
func (h *Handler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", maxBodyBytes))
	}

	event := Classify(payload)
	if event.Kind == EventIgnorable {
		// Nothing to act on; ack so upstream never retries.
		return c.JSON(http.StatusOK, map[string]any{})
	}
	if err := h.checkToken(event); err != nil {
		return err
	}

	switch event.Kind {
	case EventChallenge:
		return c.JSON(http.StatusOK, map[string]string{"challenge": event.Challenge})
	case EventFileReceived:
		h.handleFile(c.Request().Context(), event)
	case EventTextReceived:
		h.handleText(c.Request().Context(), event)
	}
	// Generic success for everything else so upstream never retries.
	return c.JSON(http.StatusOK, map[string]any{})
}

func (h *Handler) checkToken(event Event) error {
	if h.verificationToken == "" {
		return nil
	}
	if strings.TrimSpace(event.Token) != h.verificationToken {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
	}
	return nil
}

// handleFile downloads the uploaded bytes and stages them. The work is
// detached: a large download must not hold up the webhook response past the
// platform's delivery deadline, or it retries and stages duplicates. The
// staging reply is the user-visible ack.
func (h *Handler) handleFile(ctx context.Context, event Event) {
	stageCtx := context.WithoutCancel(ctx)
	go func() {
		data, err := h.files.DownloadFile(stageCtx, event.MessageID, event.FileKey)
		if err != nil {
			h.logger.Error("download uploaded file failed",
				slog.String("chat_id", event.ChatID),
				slog.String("file_name", event.FileName),
				slog.Any("error", err),
			)
			return
		}
		if err := h.stager.Stage(stageCtx, event.ChatID, event.MessageID, event.FileName, data); err != nil {
			h.logger.Error("stage file failed",
				slog.String("chat_id", event.ChatID),
				slog.String("file_name", event.FileName),
				slog.Any("error", err),
			)
		}
	}()
}

// handleText dispatches a pipeline run when the message carries a trigger
// phrase. The run is detached: chat id and reply target are captured here,
// and the run outlives this request.
func (h *Handler) handleText(ctx context.Context, event Event) {
	if !h.detector.Matches(event.Text) {
		return
	}
	h.logger.Info("trigger detected", slog.String("chat_id", event.ChatID))
	runCtx := context.WithoutCancel(ctx)
	go h.runner.Run(runCtx, event.ChatID, event.MessageID)
}
