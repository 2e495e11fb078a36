package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/domain/users"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

const (
	googleIssuer   = "https://accounts.google.com"
	googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
	stateCookie    = "oauth_state"
)

type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
}

// IDTokenVerifier checks a Google ID token and returns its claims.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error)
}

type oidcVerifier struct {
	v *oidc.IDTokenVerifier
}

// NewGoogleVerifier verifies ID tokens against Google's published keys. The
// key set is fetched lazily on first use.
func NewGoogleVerifier(ctx context.Context, clientID string) IDTokenVerifier {
	keys := oidc.NewRemoteKeySet(ctx, googleCertsURL)
	return &oidcVerifier{v: oidc.NewVerifier(googleIssuer, keys, &oidc.Config{ClientID: clientID})}
}

func (o *oidcVerifier) Verify(ctx context.Context, rawIDToken string) (*GoogleClaims, error) {
	idToken, err := o.v.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.New("invalid id_token")
	}
	var claims GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.New("failed to decode token claims")
	}
	if claims.Email == "" || claims.Sub == "" {
		return nil, errors.New("token missing required claims")
	}
	return &claims, nil
}

// Google bundles the redirect flow config with the token verifier.
type Google struct {
	oauth            *oauth2.Config
	verifier         IDTokenVerifier
	frontendRedirect string
	secureCookie     bool
}

type GoogleConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	FrontendRedirect string
	SecureCookie     bool
	// Endpoint overrides Google's OAuth endpoint.
	Endpoint *oauth2.Endpoint
}

func NewGoogle(cfg GoogleConfig, verifier IDTokenVerifier) *Google {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			Endpoint:     endpoint,
		},
		verifier:         verifier,
		frontendRedirect: cfg.FrontendRedirect,
		secureCookie:     cfg.SecureCookie,
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (h *Handler) googleEnabled(c *gin.Context) bool {
	if h.google == nil {
		respond.Error(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return false
	}
	return true
}

// POST /auth/google
func (h *Handler) GoogleToken(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}
	var body struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "idToken is required")
		return
	}

	claims, err := h.google.verifier.Verify(c.Request.Context(), body.IDToken)
	if err != nil {
		respond.Error(c, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := h.findOrCreateGoogleUser(c.Request.Context(), claims)
	if err != nil {
		respond.Internal(c, "Failed to create user", err)
		return
	}
	h.respondWithToken(c, http.StatusOK, "Login successful", user)
}

// GET /auth/google
func (h *Handler) GoogleStart(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}
	state, err := randomState()
	if err != nil {
		respond.Internal(c, "Failed to generate state", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 300, "/", "", h.google.secureCookie, true)
	c.Redirect(http.StatusFound, h.google.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// GET /auth/google/callback
func (h *Handler) GoogleCallback(c *gin.Context) {
	if !h.googleEnabled(c) {
		return
	}
	state := c.Query("state")
	code := c.Query("code")
	if code == "" || state == "" {
		respond.Error(c, http.StatusBadRequest, "missing code/state")
		return
	}

	cookieState, err := c.Cookie(stateCookie)
	if err != nil || cookieState != state {
		respond.Error(c, http.StatusBadRequest, "invalid oauth state")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.google.secureCookie, true)

	ctx := c.Request.Context()
	tok, err := h.google.oauth.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("google code exchange failed", "error", err)
		respond.Error(c, http.StatusUnauthorized, "failed to exchange code")
		return
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		respond.Error(c, http.StatusUnauthorized, "missing id_token")
		return
	}

	claims, err := h.google.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		respond.Error(c, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := h.findOrCreateGoogleUser(ctx, claims)
	if err != nil {
		respond.Internal(c, "Failed to create user", err)
		return
	}

	tokenString, err := IssueToken(h.cfg.JWTSecret, h.cfg.TokenTTL, user)
	if err != nil {
		respond.Internal(c, "Could not create token", err)
		return
	}

	if h.google.frontendRedirect == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": tokenString, "user": user})
		return
	}
	c.Redirect(http.StatusFound, h.google.frontendRedirect+"?token="+url.QueryEscape(tokenString))
}

func (h *Handler) findOrCreateGoogleUser(ctx context.Context, gc *GoogleClaims) (users.User, error) {
	db := h.db.WithContext(ctx)
	var user users.User

	if err := db.Where("google_sub = ?", gc.Sub).First(&user).Error; err == nil {
		return user, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, err
	}

	email := users.NormalizeEmail(gc.Email)
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		sub := gc.Sub
		user.GoogleSub = &sub
		user.EmailVerified = true
		if err := db.Save(&user).Error; err != nil {
			return users.User{}, err
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, err
	}

	sub := gc.Sub
	user = users.User{
		Name:          firstNonEmpty(gc.Name, gc.GivenName, email),
		Email:         email,
		AuthProvider:  users.ProviderGoogle,
		GoogleSub:     &sub,
		Role:          h.roleFor(email),
		EmailVerified: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return users.User{}, err
	}
	return user, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
