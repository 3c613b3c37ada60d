package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"amoflow/internal/config"
	"amoflow/internal/middleware"
	"amoflow/internal/models"
)

type AuthHandler struct {
	accounts map[string]config.ConsoleUser
	secret   []byte
	ttl      time.Duration
	log      *log.Logger
	now      func() time.Time
}

func NewAuthHandler(cfg config.ConsoleConfig, secret []byte, logger *log.Logger) *AuthHandler {
	accounts := make(map[string]config.ConsoleUser)
	for _, u := range cfg.Accounts() {
		accounts[strings.TrimSpace(u.Username)] = u
	}
	return &AuthHandler{accounts: accounts, secret: secret, ttl: cfg.TokenTTL, log: logger, now: time.Now}
}

// Login — POST /login {username, password} → access_token консоли.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("[auth][login] bad request: bind json failed: err=%v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	h.log.Infof("[auth][login] attempt username=%q", username)

	user, ok := h.accounts[username]
	if !ok {
		h.log.Warnf("[auth][login] unknown username=%q", username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}
	ph := strings.TrimSpace(user.PasswordHash)
	if err := bcrypt.CompareHashAndPassword([]byte(ph), []byte(req.Password)); err != nil {
		h.log.Warnf("[auth][login] bcrypt mismatch for username=%q: err=%v", username, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, exp, err := middleware.IssueToken(h.secret, username, user.Role, h.ttl, h.now())
	if err != nil {
		h.log.Errorf("[auth][login] sign token failed for username=%q: err=%v", username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not issue token"})
		return
	}
	h.log.Infof("[auth][login] success username=%q role=%s", username, user.Role)
	c.JSON(http.StatusOK, models.LoginResponse{AccessToken: token, ExpiresAt: exp.Unix()})
}
