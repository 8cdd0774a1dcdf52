// Package devserver implements the reference media server the engine is
// developed and tested against. It is not part of the client engine; it
// exists so the discovery, login and pairing flows have a real counterpart
// to run against locally.
package devserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/config"
	"medialink-client-go/internal/platform/errors"
	"medialink-client-go/internal/platform/storage"
	"medialink-client-go/internal/transport/api"
	httptransport "medialink-client-go/internal/transport/http"
)

// pairSession is one outstanding device-code grant on the server side.
type pairSession struct {
	deviceCode string
	userCode   string
	expiresAt  time.Time
	authorized bool
	denied     bool
	accountID  uint
}

// Service hosts the reference server's HTTP handlers.
type Service struct {
	db     *gorm.DB
	tokens *AuthToken
	logger model.Logger
	cfg    config.DevServerConfig

	mu       sync.Mutex
	sessions map[string]*pairSession // device code -> session
	byUser   map[string]string       // user code -> device code
}

// NewService creates the reference server service.
func NewService(cfg config.DevServerConfig, db *gorm.DB, logger model.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New(errors.KindConfig, "devserver.new", "database is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "devserver.new", "logger is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New(errors.KindConfig, "devserver.new", "jwt secret is required")
	}
	return &Service{
		db:       db,
		tokens:   NewAuthToken(cfg.JWTSecret),
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[string]*pairSession),
		byUser:   make(map[string]string),
	}, nil
}

// Register wires the routes the client engine's fixed contract expects.
// Health and pairing live at the root; account operations under /api.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	router.Engine.GET("/health", s.handleHealth)
	router.Engine.POST("/pair/request", s.handlePairRequest)
	router.Engine.POST("/pair/poll", s.handlePairPoll)
	router.Engine.POST("/pair/activate", s.handlePairActivate)

	router.API.POST("/auth/login", s.handleLogin)

	secured := router.API.Group("")
	secured.Use(s.authMiddleware())
	secured.POST("/auth/logout", s.handleLogout)
	secured.GET("/auth/me", s.handleMe)

	s.logger.Info("reference server routes registered")
	return nil
}

// EnsureAccount creates the account when no account with the username
// exists yet. Used to seed a default login for local development.
func (s *Service) EnsureAccount(email, username, password, role string) error {
	var count int64
	if err := s.db.Model(&storage.Account{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "devserver.ensure_account", "failed to query accounts", err)
	}
	if count > 0 {
		return nil
	}
	account := storage.Account{Email: email, Username: username, Password: password, Role: role}
	if err := s.db.Create(&account).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "devserver.ensure_account", "failed to create account", err)
	}
	s.logger.Info("seeded account %s", username)
	return nil
}

func (s *Service) handleHealth(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"service": "medialink-devserver",
		"status":  "ok",
	}, "")
}

func (s *Service) handleLogin(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "malformed login request", nil)
		return
	}
	if req.Identifier == "" || req.Password == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "identifier and password are required", nil)
		return
	}

	account, err := s.findAccount(req.Identifier)
	if err != nil || account.Password != req.Password {
		httptransport.RespondError(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, err := s.tokens.GenerateToken(formatID(account.ID), account.Username)
	if err != nil {
		s.logger.Error("failed to sign login token: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}

	c.JSON(http.StatusOK, api.LoginResponse{
		User:  profileOf(account),
		Token: token,
	})
}

func (s *Service) handleLogout(c *gin.Context) {
	// Tokens are stateless; logout exists so clients can invalidate
	// symmetrically. Nothing to revoke server-side.
	httptransport.RespondSuccess(c, http.StatusOK, nil, "logged out")
}

func (s *Service) handleMe(c *gin.Context) {
	account, ok := s.accountFromContext(c)
	if !ok {
		httptransport.RespondError(c, http.StatusUnauthorized, "account not found", nil)
		return
	}
	c.JSON(http.StatusOK, profileOf(account))
}

func (s *Service) handlePairRequest(c *gin.Context) {
	session := &pairSession{
		deviceCode: uuid.NewString(),
		userCode:   newUserCode(),
		expiresAt:  time.Now().Add(s.pairExpiry()),
	}

	s.mu.Lock()
	s.pruneLocked()
	s.sessions[session.deviceCode] = session
	s.byUser[session.userCode] = session.deviceCode
	s.mu.Unlock()

	s.logger.Info("pairing session opened, user code %s", session.userCode)
	c.JSON(http.StatusOK, api.PairRequestResponse{
		DeviceCode: session.deviceCode,
		UserCode:   session.userCode,
		ExpiresIn:  int(s.pairExpiry() / time.Second),
		Interval:   int(s.pairInterval() / time.Second),
	})
}

func (s *Service) handlePairPoll(c *gin.Context) {
	var req api.PairPollRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceCode == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "device_code is required", nil)
		return
	}

	s.mu.Lock()
	session, ok := s.sessions[req.DeviceCode]
	if ok && !session.authorized && time.Now().After(session.expiresAt) {
		s.removeLocked(session)
		ok = false
	}
	var authorized, denied bool
	var accountID uint
	if ok {
		authorized, denied, accountID = session.authorized, session.denied, session.accountID
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, api.PairPollResponse{Status: api.PairStatusExpired})
		return
	}
	if denied {
		c.JSON(http.StatusOK, api.PairPollResponse{Status: api.PairStatusDenied})
		return
	}
	if !authorized {
		c.JSON(http.StatusOK, api.PairPollResponse{Status: api.PairStatusPending})
		return
	}

	var account storage.Account
	if err := s.db.First(&account, accountID).Error; err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "authorizing account vanished", nil)
		return
	}
	token, err := s.tokens.GenerateToken(formatID(account.ID), account.Username)
	if err != nil {
		s.logger.Error("failed to sign pairing token: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}

	s.mu.Lock()
	s.removeLocked(session)
	s.mu.Unlock()

	c.JSON(http.StatusOK, api.PairPollResponse{
		Status:      api.PairStatusAuthorized,
		AccessToken: token,
	})
}

// handlePairActivate is the second-screen side of the grant: a user types the
// short code and proves who they are, which authorizes the waiting device.
func (s *Service) handlePairActivate(c *gin.Context) {
	var req struct {
		UserCode   string `json:"user_code"`
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserCode == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "user_code is required", nil)
		return
	}

	account, err := s.findAccount(req.Identifier)
	if err != nil || account.Password != req.Password {
		httptransport.RespondError(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.UserCode))
	s.mu.Lock()
	deviceCode, ok := s.byUser[code]
	var session *pairSession
	if ok {
		session = s.sessions[deviceCode]
	}
	if session == nil || time.Now().After(session.expiresAt) {
		s.mu.Unlock()
		httptransport.RespondError(c, http.StatusNotFound, "unknown or expired code", nil)
		return
	}
	session.authorized = true
	session.accountID = account.ID
	s.mu.Unlock()

	s.logger.Info("pairing code %s activated by %s", code, account.Username)
	httptransport.RespondSuccess(c, http.StatusOK, nil, "device authorized")
}

func (s *Service) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			httptransport.RespondError(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		userID, err := s.tokens.VerifyToken(token)
		if err != nil {
			httptransport.RespondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func (s *Service) accountFromContext(c *gin.Context) (storage.Account, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return storage.Account{}, false
	}
	id, err := strconv.ParseUint(raw.(string), 10, 64)
	if err != nil {
		return storage.Account{}, false
	}
	var account storage.Account
	if err := s.db.First(&account, uint(id)).Error; err != nil {
		return storage.Account{}, false
	}
	return account, true
}

// findAccount resolves a login identifier against username first, then email.
func (s *Service) findAccount(identifier string) (storage.Account, error) {
	var account storage.Account
	err := s.db.Where("username = ? OR email = ?", identifier, identifier).First(&account).Error
	return account, err
}

func (s *Service) pairExpiry() time.Duration {
	if s.cfg.PairExpiry > 0 {
		return s.cfg.PairExpiry
	}
	return 5 * time.Minute
}

func (s *Service) pairInterval() time.Duration {
	if s.cfg.PairInterval > 0 {
		return s.cfg.PairInterval
	}
	return 3 * time.Second
}

// removeLocked drops a session from both indexes. Caller holds s.mu.
func (s *Service) removeLocked(session *pairSession) {
	delete(s.sessions, session.deviceCode)
	delete(s.byUser, session.userCode)
}

// pruneLocked evicts expired sessions so abandoned grants do not pile up.
func (s *Service) pruneLocked() {
	now := time.Now()
	for _, session := range s.sessions {
		if now.After(session.expiresAt) && !session.authorized {
			s.removeLocked(session)
		}
	}
}

func profileOf(account storage.Account) model.UserProfile {
	return model.UserProfile{
		ID:        formatID(account.ID),
		Email:     account.Email,
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: account.CreatedAt,
	}
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// newUserCode derives a short display code. Four characters from the UUID
// space keeps collisions unlikely at dev-server scale while staying typeable.
func newUserCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:4]
}
