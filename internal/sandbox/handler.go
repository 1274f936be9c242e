package sandbox

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
)

// Faults configures injected failures
type Faults struct {
	// FailAfter is the number of calls answered normally before Status applies
	FailAfter int
	// Status, when non-zero, answers every call past FailAfter
	Status int
	// NotFound lists "cloudID/workspaceUUID" pairs rotate answers with 404
	NotFound []string
}

// Call is one request the sandbox received
type Call struct {
	Method        string
	Path          string
	Authorization string
	Body          []byte
	Status        int
}

// Dependencies holds everything the handlers need
type Dependencies struct {
	Logger *slog.Logger
	Token  string
	Faults Faults
}

// Handler serves the replay endpoints and records every call
type Handler struct {
	logger *slog.Logger
	faults Faults

	mu    sync.Mutex
	calls []Call
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = discard
	}
	return &Handler{
		logger: logger,
		faults: deps.Faults,
	}
}

// Calls returns a copy of the calls received so far
func (h *Handler) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// SetFaults replaces the fault configuration; the call count is kept
func (h *Handler) SetFaults(f Faults) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = f
}

// Reset forgets recorded calls
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// Resync handles POST /api/resync
func (h *Handler) Resync(c *gin.Context) {
	var req ResyncRequest
	h.serve(c, &req, func() int { return len(req.InstallationIDs) })
}

// Configuration handles POST /api/configuration
func (h *Handler) Configuration(c *gin.Context) {
	var req ConfigurationRequest
	h.serve(c, &req, func() int { return len(req.JiraHosts) })
}

// ResyncFailedTasks handles POST /api/resync-failed-tasks
func (h *Handler) ResyncFailedTasks(c *gin.Context) {
	var req ResyncFailedTasksRequest
	h.serve(c, &req, func() int { return len(req.SubscriptionIDs) })
}

// ReplayRejected handles POST /api/replay-rejected-entities-from-data-depot
func (h *Handler) ReplayRejected(c *gin.Context) {
	var req ReplayRequest
	h.serve(c, &req, func() int { return len(req.ReplayEntities) })
}

// RotateSecrets handles POST /api/internal/installations/rotate/cloudid/:cloud_id/bitbucket/workspaceuuid/:workspace_uuid
func (h *Handler) RotateSecrets(c *gin.Context) {
	cloudID := c.Param("cloud_id")
	workspace := c.Param("workspace_uuid")

	h.mu.Lock()
	missing := slices.Contains(h.faults.NotFound, cloudID+"/"+workspace)
	h.mu.Unlock()

	if missing {
		h.respond(c, nil, http.StatusNotFound, ErrorResponse{Error: "installation not found"})
		return
	}
	h.serve(c, nil, func() int { return 1 })
}

// serve records the call, applies faults, binds req when non-nil and
// acknowledges count() items.
func (h *Handler) serve(c *gin.Context, req any, count func() int) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respond(c, body, http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	if status := h.injected(); status != 0 {
		h.respond(c, body, status, ErrorResponse{Error: "injected failure"})
		return
	}

	if req != nil {
		if err := c.ShouldBindJSON(req); err != nil {
			h.logger.Warn("Invalid request body",
				slog.String("path", c.Request.URL.Path),
				slog.String("error", err.Error()),
			)
			h.respond(c, body, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	h.respond(c, body, http.StatusOK, AcceptedResponse{Accepted: count()})
}

// injected returns the fault status for the next call, or 0
func (h *Handler) injected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.faults.Status == 0 || len(h.calls) < h.faults.FailAfter {
		return 0
	}
	return h.faults.Status
}

func (h *Handler) respond(c *gin.Context, body []byte, status int, payload any) {
	h.mu.Lock()
	h.calls = append(h.calls, Call{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		Authorization: c.GetHeader("Authorization"),
		Body:          body,
		Status:        status,
	})
	h.mu.Unlock()

	c.JSON(status, payload)
}
