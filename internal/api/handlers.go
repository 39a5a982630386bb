package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/backend"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/ratelimit"
	"github.com/Kammelleon/pdf-qa/internal/service/assistant"
	"github.com/Kammelleon/pdf-qa/internal/service/conversation"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber hands out notification streams for the event endpoint.
type Subscriber interface {
	Subscribe() (<-chan notify.Notification, func())
}

// Options carries optional collaborators of the bridge.
type Options struct {
	Events    Subscriber
	Limiter   *ratelimit.Limiter
	Metrics   http.Handler
	Logger    *zerolog.Logger
	Heartbeat time.Duration
}

// Handler exposes one assistant service to a local front end.
type Handler struct {
	assistant *assistant.Service
	events    Subscriber
	limiter   *ratelimit.Limiter
	metrics   http.Handler
	log       zerolog.Logger
	heartbeat time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, opts Options) *Handler {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		assistant: service,
		events:    opts.Events,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		log:       log,
		heartbeat: heartbeat,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api")
	api.GET("/session", h.getSession)
	api.GET("/events", h.streamEvents)
	writes := api.Group("")
	writes.Use(rateLimit(h.limiter))
	writes.POST("/documents", h.uploadDocument)
	writes.POST("/questions", h.askQuestion)
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.assistant.Snapshot())
}

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

func (h *Handler) uploadDocument(c *gin.Context) {
	limit := h.assistant.MaxFileBytes()
	// Oversized files are read up to a cap so the validator can still
	// report TOO_LARGE from the part header.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*limit+formOverhead)

	var cand *intake.Candidate
	file, err := c.FormFile("file")
	switch {
	case err == nil:
		cand = intake.FromFileHeader(file)
	case errors.Is(err, http.ErrMissingFile):
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.assistant.Reject(c.Request.Context(), intake.ReasonTooLarge)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large", "code": string(intake.ReasonTooLarge)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	// The upload outlives a dropped client connection.
	ctx := context.WithoutCancel(c.Request.Context())
	doc, res, err := h.assistant.SelectAndUpload(ctx, cand)
	if cand != nil && !res.Accepted {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "file rejected", "code": string(res.Reason)})
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrNoFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "code": "NO_FILE"})
		case errors.Is(err, assistant.ErrUploadInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": backend.MessageOr(err, "Error uploading file")})
		}
		return
	}
	c.JSON(http.StatusCreated, doc)
}

type questionRequest struct {
	Question string `json:"question"`
}

func (h *Handler) askQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	turn, err := h.assistant.Ask(ctx, req.Question)
	if err != nil {
		code := conversation.Code(err)
		switch code {
		case "EMPTY_INPUT":
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
		case "NO_DOCUMENT", "BUSY", "SUPERSEDED":
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": code})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": backend.MessageOr(err, "Error getting answer")})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"turn": turn, "session": h.assistant.Snapshot()})
}
