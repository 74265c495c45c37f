package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/movie-ticket-booking/internal/config"
    "github.com/iliyamo/movie-ticket-booking/internal/model"
    "github.com/iliyamo/movie-ticket-booking/internal/repository"
    "github.com/iliyamo/movie-ticket-booking/internal/utils"
)

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
    Cfg   config.Config
    Users repository.UserRepository
    Log   logrus.FieldLogger
    now   func() time.Time
}

func NewAuthHandler(cfg config.Config, users repository.UserRepository, log logrus.FieldLogger) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: users, Log: log, now: time.Now}
}

// ----- DTOs -----

type registerReq struct {
    Name     string `json:"name" validate:"required"`
    Email    string `json:"email" validate:"required,email"`
    Password string `json:"password" validate:"required,min=8"`
    Role     string `json:"role"` // CUSTOMER | ADMIN
}

type loginReq struct {
    Email    string `json:"email" validate:"required"`
    Password string `json:"password" validate:"required"`
}

type authResp struct {
    User   model.User        `json:"user"`
    Access utils.AccessToken `json:"access"`
}

// Register creates a customer account and returns a token for it.  ADMIN
// accounts can only be self-registered when ALLOW_ADMIN_SIGNUP is set.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := bind(c, &req); err != nil {
        return respondError(c, h.Log, err)
    }
    role := strings.ToUpper(strings.TrimSpace(req.Role))
    if role != model.RoleAdmin || !h.Cfg.AllowAdminSignup {
        role = model.RoleCustomer
    }
    hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    u := model.User{
        ID:           uuid.NewString(),
        Name:         strings.TrimSpace(req.Name),
        Email:        strings.ToLower(strings.TrimSpace(req.Email)),
        PasswordHash: hash,
        Role:         role,
        CreatedAt:    h.now().UTC(),
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Users.Create(ctx, &u); err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return c.JSON(http.StatusConflict, echo.Map{"message": "Email already exists"})
        }
        return respondError(c, h.Log, err)
    }
    return h.issue(c, http.StatusCreated, u)
}

// Login verifies credentials and returns a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := bind(c, &req); err != nil {
        return respondError(c, h.Log, err)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, req.Email)
    if errors.Is(err, repository.ErrNotFound) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid credentials"})
    }
    if err != nil {
        return respondError(c, h.Log, err)
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid credentials"})
    }
    return h.issue(c, http.StatusOK, u)
}

func (h *AuthHandler) issue(c echo.Context, status int, u model.User) error {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(status, authResp{User: u, Access: access})
}
