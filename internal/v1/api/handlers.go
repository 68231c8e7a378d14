// Package api implements the REST surface: account registration and login,
// room records, and the inbound webhook sink.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peercall/broker/internal/v1/auth"
	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/store"
)

const maxRoomNameLength = 50

// AuthService is the slice of the credential service the REST surface uses.
type AuthService interface {
	Register(ctx context.Context, input auth.RegisterInput) (*store.User, string, error)
	Login(ctx context.Context, input auth.LoginInput) (*store.User, string, error)
	GetUser(ctx context.Context, userID string) (*store.User, error)
}

// RoomService is the slice of the room store the REST surface uses.
type RoomService interface {
	Create(ctx context.Context, input store.NewRoomInput) (*store.Room, error)
	Get(ctx context.Context, roomID string) (*store.Room, error)
}

// Handler carries the services the REST endpoints depend on.
type Handler struct {
	auth  AuthService
	rooms RoomService
}

func NewHandler(authService AuthService, rooms RoomService) *Handler {
	return &Handler{auth: authService, rooms: rooms}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *gin.Context) {
	var input auth.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), input)
	if err != nil {
		switch {
		case auth.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		case errors.Is(err, store.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		default:
			logging.Error(c.Request.Context(), "registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	logging.Info(c.Request.Context(), "user registered",
		zap.String("userId", user.ID),
		zap.String("email", logging.RedactEmail(user.Email)))
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var input auth.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		logging.Error(c.Request.Context(), "login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me handles GET /api/auth/me, returning the authenticated user's profile.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
			return
		}
		logging.Error(c.Request.Context(), "profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

type createRoomRequest struct {
	Name               string `json:"name"`
	IsPrivate          bool   `json:"isPrivate"`
	Password           string `json:"password"`
	WaitingRoomEnabled bool   `json:"waitingRoomEnabled"`
}

// CreateRoom handles POST /api/rooms. Requires authentication; the caller
// becomes the room's creator.
func (h *Handler) CreateRoom(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name must be 1-50 characters"})
		return
	}
	if req.IsPrivate && req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "private rooms require a password"})
		return
	}

	var passwordHash string
	if req.IsPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), auth.BcryptCost)
		if err != nil {
			logging.Error(c.Request.Context(), "room password hashing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "room creation failed"})
			return
		}
		passwordHash = string(hash)
	}

	room, err := h.rooms.Create(c.Request.Context(), store.NewRoomInput{
		Name:               name,
		CreatorUserID:      claims.UserID,
		IsPrivate:          req.IsPrivate,
		PasswordHash:       passwordHash,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "room creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room creation failed"})
		return
	}

	logging.Info(c.Request.Context(), "room created",
		zap.String("roomId", room.ID),
		zap.String("creatorUserId", claims.UserID))
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// GetRoom handles GET /api/rooms/:roomId. Auth is optional; guests may
// inspect a room before joining.
func (h *Handler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	room, err := h.rooms.Get(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		logging.Error(c.Request.Context(), "room lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room lookup failed"})
		return
	}

	if room.IsPrivate {
		claims, ok := auth.ClaimsFrom(c)
		if !ok || claims.UserID != room.CreatorUserID {
			room.ChatMessages = nil
		}
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

// Webhook handles POST /api/webhook. Upstream providers expect a fast 200;
// the payload is logged and otherwise discarded.
func (h *Handler) Webhook(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	event, _ := payload["event"].(string)
	logging.Info(c.Request.Context(), "webhook received", zap.String("event", event))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
