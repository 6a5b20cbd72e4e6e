package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	apperrors "tracketl/api/errors"
	"tracketl/api/httputil"
	"tracketl/api/models"
	"tracketl/api/store"
	"tracketl/api/utils"
)

const tokenCookie = "jwt_token"

// UserRepository stores operator accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthHandlers struct {
	users  UserRepository
	tokens *utils.TokenIssuer
}

func NewAuthHandlers(users UserRepository, tokens *utils.TokenIssuer) *AuthHandlers {
	return &AuthHandlers{users: users, tokens: tokens}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("request body", err.Error()))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httputil.RespondError(c, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to process password", err))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			httputil.RespondError(c, apperrors.AlreadyExists("user"))
			return
		}
		httputil.RespondError(c, apperrors.Database(fmt.Errorf("create user: %w", err)))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user_email": user.Email})
}

// Login checks credentials and issues a JWT cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, apperrors.InvalidInput("request body", err.Error()))
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			httputil.RespondError(c, apperrors.Database(fmt.Errorf("get user: %w", err)))
			return
		}
		log.Info().Str("email", req.Email).Msg("login failed: unknown user")
		httputil.RespondError(c, apperrors.Unauthorized("Invalid credentials"))
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		log.Info().Str("email", req.Email).Msg("login failed: password mismatch")
		httputil.RespondError(c, apperrors.Unauthorized("Invalid credentials"))
		return
	}

	tokenString, err := h.tokens.GenerateJWT(user)
	if err != nil {
		httputil.RespondError(c, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to generate authentication token", err))
		return
	}

	c.SetCookie(tokenCookie, tokenString, int(h.tokens.TTL().Seconds()), "/", "", false, true)

	log.Info().Int("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "user_email": user.Email})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(tokenCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
