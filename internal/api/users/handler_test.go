package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/users"
	"econfere-api/internal/testutil"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestProfile(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	h := NewHandler(db, "http://front", nil)

	r := gin.New()
	r.GET("/auth/profile", middleware.AuthMiddleware(testutil.JWTSecret), h.Profile)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", testutil.Bearer(t, u))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		User map[string]any `json:"user"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.User["id"] != u.ID || body.User["email"] != "ana@example.com" {
		t.Errorf("user = %v", body.User)
	}
	if _, leaked := body.User["password_hash"]; leaked {
		t.Error("password hash leaked")
	}

	db.Delete(&users.User{}, "id = ?", u.ID)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted user: status = %d, want 404", w.Code)
	}
}

func TestVerifyEmail(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	db.Create(&users.VerificationToken{UserID: u.ID, Token: "tok-live", ExpiresAt: time.Now().Add(time.Hour)})

	h := NewHandler(db, "http://front/", nil)
	r := gin.New()
	r.GET("/auth/verify", h.VerifyEmail)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	if w := get("/auth/verify"); w.Code != http.StatusBadRequest {
		t.Errorf("missing token: status = %d", w.Code)
	}
	if w := get("/auth/verify?token=nope"); w.Code != http.StatusBadRequest {
		t.Errorf("unknown token: status = %d", w.Code)
	}

	w := get("/auth/verify?token=tok-live")
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "http://front/login?verified=1" {
		t.Fatalf("status = %d, location = %q", w.Code, w.Header().Get("Location"))
	}

	var got users.User
	db.First(&got, "id = ?", u.ID)
	if !got.EmailVerified {
		t.Error("email not marked verified")
	}
	if w := get("/auth/verify?token=tok-live"); w.Code != http.StatusBadRequest {
		t.Errorf("token reuse: status = %d", w.Code)
	}
}

func TestVerifyEmail_Expired(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	db.Create(&users.VerificationToken{UserID: u.ID, Token: "tok-old", ExpiresAt: time.Now().Add(-time.Minute)})

	r := gin.New()
	r.GET("/auth/verify", NewHandler(db, "http://front", nil).VerifyEmail)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/verify?token=tok-old", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
