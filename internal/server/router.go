package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/the-sect/backend/internal/cults"
	"github.com/the-sect/backend/internal/ranking"
	"github.com/the-sect/backend/internal/room"
	"github.com/the-sect/backend/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "sect_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUserDirectory = errors.New("user directory dependency required")
	errMissingCultService   = errors.New("cult service dependency required")
	errMissingRanking       = errors.New("ranking dependency required")
	errMissingRooms         = errors.New("room registry dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates session tokens.
type TokenManager interface {
	IssueSessionToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// UserDirectory resolves handles to accounts and answers role queries.
type UserDirectory interface {
	Resolve(ctx context.Context, handle users.Handle) (users.User, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RankingReader serves leaderboard reads and forced recomputes.
type RankingReader interface {
	GetRanking(ctx context.Context) ([]ranking.EntityMetrics, error)
	ForceRecompute(ctx context.Context) error
}

// SnapshotHistory lists archived leaderboard snapshots.
type SnapshotHistory interface {
	History(ctx context.Context, limit int) ([]ranking.Snapshot, error)
}

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	TokenManager TokenManager
	Users        UserDirectory
	Cults        *cults.Service
	Ranking      RankingReader
	Rooms        *room.Registry
	Snapshots    SnapshotHistory
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewHTTPHandler validates dependencies and builds the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserDirectory
	}
	if deps.Cults == nil {
		return nil, errMissingCultService
	}
	if deps.Ranking == nil {
		return nil, errMissingRanking
	}
	if deps.Rooms == nil {
		return nil, errMissingRooms
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.Users,
		cults:     deps.Cults,
		ranking:   deps.Ranking,
		rooms:     deps.Rooms,
		snapshots: deps.Snapshots,
		clock:     clock,
		logger:    logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)
	api.GET("/top10", handler.handleTop10)
	api.GET("/rooms/:roomID/ws", handler.handleRoomSocket)
	api.POST("/auth/login", handler.handleLogin)
	api.GET("/cults", handler.handleListCults)
	api.GET("/cults/:cultRef", handler.handleGetCult)
	api.GET("/cults/:cultRef/signals", handler.handleListSignals)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/cults", handler.handleCreateCult)
	protected.POST("/cults/:cultRef/join", handler.handleJoin)
	protected.POST("/cults/:cultRef/leave", handler.handleLeave)
	protected.POST("/cults/:cultRef/signals", handler.handlePostSignal)
	protected.POST("/signals/:signalID/vote", handler.handleVote)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.POST("/recompute", handler.handleRecompute)
	admin.POST("/moderate", handler.handleModerate)
	admin.GET("/snapshots", handler.handleSnapshots)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	users     UserDirectory
	cults     *cults.Service
	ranking   RankingReader
	rooms     *room.Registry
	snapshots SnapshotHistory
	clock     func() time.Time
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": h.clock().UnixMilli()})
}

func (h *httpHandler) handleTop10(c *gin.Context) {
	topList, err := h.ranking.GetRanking(c.Request.Context())
	if err != nil {
		h.logger.Error("leaderboard read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking_unavailable"})
		return
	}
	c.JSON(http.StatusOK, topList)
}

func (h *httpHandler) handleRoomSocket(c *gin.Context) {
	roomID := c.Param("roomID")
	if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		c.String(http.StatusUpgradeRequired, "Expected Upgrade: websocket")
		return
	}
	actor := h.rooms.GetOrCreate(roomID)
	if err := room.ServeWS(actor, c.Writer, c.Request); err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("room", roomID),
			zap.Error(err))
	}
}

type loginRequestPayload struct {
	Handle string `json:"handle" binding:"required"`
}

type loginResponsePayload struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`
	TokenType   string     `json:"token_type"`
	User        users.User `json:"user"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	handle, err := users.NewHandle(request.Handle)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Resolve(c.Request.Context(), handle)
	if err != nil {
		h.logger.Error("handle resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), user.UserID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        user,
	})
}

func (h *httpHandler) handleListCults(c *gin.Context) {
	summaries, err := h.cults.ListCults(c.Request.Context())
	if err != nil {
		h.logger.Error("cult listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

type createCultPayload struct {
	Name        string `json:"name" binding:"required"`
	Slug        string `json:"slug" binding:"required"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

func (h *httpHandler) handleCreateCult(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var payload createCultPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name, err := cults.NewCultName(payload.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	slug, err := cults.NewSlug(payload.Slug)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	description, err := cults.NewDescription(payload.Description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cult, err := h.cults.CreateCult(c.Request.Context(), userID, cults.CreateCultRequest{
		Name:        name,
		Slug:        slug,
		Symbol:      payload.Symbol,
		Description: description,
	})
	if errors.Is(err, cults.ErrSlugTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken"})
		return
	}
	if err != nil {
		h.logger.Error("cult creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}
	c.JSON(http.StatusCreated, cult)
}

func (h *httpHandler) handleGetCult(c *gin.Context) {
	profile, err := h.cults.GetBySlug(c.Request.Context(), c.Param("cultRef"))
	if errors.Is(err, cults.ErrCultNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "cult_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("cult lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.cults.Join(c.Request.Context(), userID, c.Param("cultRef"))
	switch {
	case errors.Is(err, cults.ErrCultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cult_not_found"})
	case errors.Is(err, cults.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": "already_member"})
	case err != nil:
		h.logger.Error("join failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	err := h.cults.Leave(c.Request.Context(), userID, c.Param("cultRef"))
	switch {
	case errors.Is(err, cults.ErrNotMember):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_a_member"})
	case errors.Is(err, cults.ErrFounderCannotLeave):
		c.JSON(http.StatusForbidden, gin.H{"error": "founder_cannot_leave"})
	case err != nil:
		h.logger.Error("leave failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "leave_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *httpHandler) handleListSignals(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	summaries, err := h.cults.ListSignals(c.Request.Context(), c.Param("cultRef"), limit, offset)
	if err != nil {
		h.logger.Error("signal listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

type postSignalPayload struct {
	Title string `json:"title"`
	Body  string `json:"body" binding:"required"`
	URL   string `json:"url"`
}

func (h *httpHandler) handlePostSignal(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var payload postSignalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	body, err := cults.NewSignalBody(payload.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signal, err := h.cults.PostSignal(c.Request.Context(), userID, c.Param("cultRef"), cults.PostSignalRequest{
		Title: payload.Title,
		Body:  body,
		URL:   payload.URL,
	})
	switch {
	case errors.Is(err, cults.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "membership_required"})
	case err != nil:
		h.logger.Error("signal post failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post_failed"})
	default:
		c.JSON(http.StatusCreated, gin.H{"id": signal.SignalID})
	}
}

type votePayload struct {
	Value int `json:"value" binding:"required"`
}

func (h *httpHandler) handleVote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var payload votePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	value, err := cults.NewVoteValue(payload.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_value"})
		return
	}

	err = h.cults.Vote(c.Request.Context(), userID, c.Param("signalID"), value)
	switch {
	case errors.Is(err, cults.ErrSignalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "signal_not_found"})
	case errors.Is(err, cults.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "membership_required"})
	case err != nil:
		h.logger.Error("vote failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *httpHandler) handleRecompute(c *gin.Context) {
	if err := h.ranking.ForceRecompute(c.Request.Context()); err != nil {
		h.logger.Error("forced recompute failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recompute_failed"})
		return
	}
	topList, err := h.ranking.GetRanking(c.Request.Context())
	if err != nil {
		h.logger.Error("leaderboard read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ranking_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "top10": topList})
}

type moderatePayload struct {
	CultID string `json:"cultId" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func (h *httpHandler) handleModerate(c *gin.Context) {
	var payload moderatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.cults.Moderate(c.Request.Context(), payload.CultID, cults.ModerationAction(payload.Action))
	switch {
	case errors.Is(err, cults.ErrUnknownModerationAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
	case errors.Is(err, cults.ErrCultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "cult_not_found"})
	case err != nil:
		h.logger.Error("moderation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "moderate_failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *httpHandler) handleSnapshots(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshots_unavailable"})
		return
	}
	snapshots, err := h.snapshots.History(c.Request.Context(), intQuery(c, "limit", 30))
	if err != nil {
		h.logger.Error("snapshot listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	isAdmin, err := h.users.IsAdmin(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("role lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "role_lookup_failed"})
		return
	}
	if !isAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_required"})
		return
	}
	c.Next()
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
