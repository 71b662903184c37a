package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/conversation"
	"github.com/vokivo/backend/internal/db"
	"github.com/vokivo/backend/internal/http/middleware"
	"github.com/vokivo/backend/internal/recordings"
)

// defaultSessionTTL bounds how long idle per-user conversation state is kept.
const defaultSessionTTL = 30 * time.Minute

// Handler owns per-principal loader/poller state. Conversation state lives
// only in process memory and is discarded with the session: idle sessions are
// evicted, and a principal whose owned-assistant set changed gets a fresh
// loader rather than a stale scope.
type Handler struct {
	Source       conversation.RecordSource
	Store        *db.Store // nil in demo mode; used only for health checks
	Recordings   recordings.Lookup
	Validator    *validator.Validate
	Logger       zerolog.Logger
	PollInterval time.Duration
	SessionTTL   time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	loader     *conversation.Loader
	poller     *conversation.Poller
	scope      conversation.Scope
	lastAccess time.Time
}

func (h *Handler) sessionFor(p middleware.Principal) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions == nil {
		h.sessions = map[string]*session{}
	}

	ttl := h.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := time.Now()
	for userID, s := range h.sessions {
		if now.Sub(s.lastAccess) > ttl {
			s.poller.Stop()
			delete(h.sessions, userID)
		}
	}

	scope := conversation.Scope{UserID: p.UserID, AssistantIDs: p.AssistantIDs}
	s, ok := h.sessions[p.UserID]
	if ok && !sameAssistants(s.scope.AssistantIDs, scope.AssistantIDs) {
		s.poller.Stop()
		delete(h.sessions, p.UserID)
		ok = false
	}
	if !ok {
		loader := conversation.NewLoader(h.Source, scope, h.Logger)
		s = &session{
			loader: loader,
			poller: conversation.NewPoller(loader, h.PollInterval, h.Logger),
			scope:  scope,
		}
		h.sessions[p.UserID] = s
	}
	s.lastAccess = now
	return s
}

// sameAssistants compares assistant-id sets without regard to order; the
// session query does not guarantee one.
func sameAssistants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Close stops every session's poller. Called on shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.poller.Stop()
	}
	h.sessions = nil
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List conversation contacts
// @Description Tier-1 summary scan: contact headers sorted by recency, no message bodies
// @Tags conversations
// @Produce json
// @Param limit query int false "Maximum contacts" default(50)
// @Success 200 {object} map[string]any
// @Router /api/v1/conversations [get]
func (h *Handler) ContactsList(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
		return
	}
	var q ContactsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query", err.Error())
		return
	}
	if err := h.Validator.Struct(q); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	s := h.sessionFor(p)
	contacts, err := s.loader.FetchContactList(c.Request.Context(), q.Limit)
	if err != nil {
		h.writeLoaderError(c, err, "Failed to list contacts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "total": len(contacts)})
}

// @Summary Conversation details
// @Description Tier-2 fetch: the full aggregate for one phone number
// @Tags conversations
// @Produce json
// @Param phoneNumber path string true "Phone number as stored"
// @Param days query int false "Recent window in days; omit for full history"
// @Success 200 {object} conversation.DetailResult
// @Router /api/v1/conversations/{phoneNumber} [get]
func (h *Handler) ConversationDetails(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
		return
	}
	phone := c.Param("phoneNumber")

	var days *int
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "days must be a positive integer", nil)
			return
		}
		days = &n
	}

	s := h.sessionFor(p)
	result, err := s.loader.FetchConversationDetails(c.Request.Context(), phone, days)
	if err != nil {
		h.writeLoaderError(c, err, "Failed to load conversation")
		return
	}
	s.poller.Watch(phone)
	c.JSON(http.StatusOK, result)
}

// @Summary Older conversation history
// @Description Tier-3 fetch: a page of records older than what is loaded
// @Tags conversations
// @Produce json
// @Param phoneNumber path string true "Phone number as stored"
// @Param offset query int false "Page offset" default(0)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} conversation.HistoryResult
// @Router /api/v1/conversations/{phoneNumber}/history [get]
func (h *Handler) ConversationHistory(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
		return
	}
	phone := c.Param("phoneNumber")
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query", err.Error())
		return
	}
	if err := h.Validator.Struct(q); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	s := h.sessionFor(p)
	result, err := s.loader.LoadConversationHistory(c.Request.Context(), phone, q.Offset, q.Limit)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Conversation not loaded", nil)
			return
		}
		h.writeLoaderError(c, err, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary New messages since a cursor
// @Description Delta fetch: records strictly newer than the last seen timestamp
// @Tags conversations
// @Produce json
// @Param phoneNumber path string true "Phone number as stored"
// @Param since query string false "RFC3339 cursor; omit to use the server-side cursor"
// @Success 200 {object} conversation.DeltaResult
// @Router /api/v1/conversations/{phoneNumber}/updates [get]
func (h *Handler) ConversationUpdates(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
		return
	}
	phone := c.Param("phoneNumber")
	s := h.sessionFor(p)

	// A client asking for updates after being idle is the visibility signal:
	// nudge the background poller too.
	s.poller.Wake()

	var (
		result conversation.DeltaResult
		err    error
	)
	if raw := c.Query("since"); raw != "" {
		since, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "since must be RFC3339", nil)
			return
		}
		result, err = s.loader.FetchNewMessagesSince(c.Request.Context(), phone, since)
	} else {
		result, err = s.loader.PollConversation(c.Request.Context(), phone)
	}
	if err != nil {
		h.writeLoaderError(c, err, "Failed to fetch updates")
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Stop watching a conversation
// @Tags conversations
// @Produce json
// @Param phoneNumber path string true "Phone number as stored"
// @Success 200 {object} map[string]any
// @Router /api/v1/conversations/{phoneNumber}/watch [delete]
func (h *Handler) ConversationUnwatch(c *gin.Context) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing session", nil)
		return
	}
	s := h.sessionFor(p)
	s.poller.Unwatch(c.Param("phoneNumber"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Recording lookup
// @Description Resolves recording metadata for a call SID through the proxy, cached per SID
// @Tags recordings
// @Produce json
// @Param callSid path string true "Call SID"
// @Success 200 {object} map[string]any
// @Router /api/v1/calls/{callSid}/recordings [get]
func (h *Handler) CallRecordings(c *gin.Context) {
	callSID := c.Param("callSid")
	info, err := h.Recordings.FetchRecording(c.Request.Context(), callSID)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "No recording for call", nil)
			return
		}
		writeError(c, http.StatusBadGateway, "PROXY_ERROR", "Recording lookup failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recording": info})
}

func (h *Handler) writeLoaderError(c *gin.Context, err error, message string) {
	code := conversation.ErrorCode(err)
	status := http.StatusInternalServerError
	if conversation.Retryable(err) {
		status = http.StatusServiceUnavailable
	}
	h.Logger.Error().Err(err).Str("code", code).Msg(message)
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"retryable": conversation.Retryable(err),
		},
	})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// ContactsQuery is the Tier-1 query string.
type ContactsQuery struct {
	Limit int `form:"limit,default=50" validate:"gte=1,lte=200"`
}

// HistoryQuery is the Tier-3 query string.
type HistoryQuery struct {
	Offset int `form:"offset,default=0" validate:"gte=0"`
	Limit  int `form:"limit,default=50" validate:"gte=1,lte=200"`
}
