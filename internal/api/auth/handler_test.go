package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/users"
	"econfere-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

type mockMailer struct {
	ResetFn  func(ctx context.Context, u users.User, code string) error
	VerifyFn func(ctx context.Context, u users.User, token string) error
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, u users.User, code string) error {
	if m.ResetFn == nil {
		return nil
	}
	return m.ResetFn(ctx, u, code)
}

func (m *mockMailer) SendVerification(ctx context.Context, u users.User, token string) error {
	if m.VerifyFn == nil {
		return nil
	}
	return m.VerifyFn(ctx, u, token)
}

func newTestHandler(t *testing.T, mail *mockMailer, google *Google) (*Handler, *gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.NewDB(t)
	if mail == nil {
		mail = &mockMailer{}
	}
	h := NewHandler(db, Config{
		JWTSecret:  testutil.JWTSecret,
		TokenTTL:   time.Hour,
		AdminEmail: "Boss@Example.com",
	}, mail, google, nil)
	h.cost = bcrypt.MinCost

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/forgot-password", h.ForgotPassword)
	r.POST("/auth/reset-password", h.ResetPassword)
	r.POST("/auth/resend-verification", h.ResendVerification)
	r.POST("/auth/google", h.GoogleToken)
	r.GET("/auth/google", h.GoogleStart)
	r.GET("/auth/google/callback", h.GoogleCallback)
	r.POST("/auth/change-password", middleware.AuthMiddleware(testutil.JWTSecret), h.ChangePassword)
	return h, db, r
}

func doJSON(r http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type authResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    users.User `json:"user"`
	Error   string     `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) authResponse {
	t.Helper()
	var out authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRegister(t *testing.T) {
	var sentToken string
	mail := &mockMailer{VerifyFn: func(_ context.Context, _ users.User, token string) error {
		sentToken = token
		return nil
	}}
	_, db, r := newTestHandler(t, mail, nil)

	w := doJSON(r, http.MethodPost, "/auth/register", gin.H{"name": "Ana", "email": " Ana@Example.com ", "password": "secret1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	resp := decode(t, w)
	if resp.Token == "" || resp.User.Email != "ana@example.com" || resp.User.Role != users.RoleUser {
		t.Errorf("response = %+v", resp)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Error("password hash leaked in response")
	}

	var vt users.VerificationToken
	if err := db.Where("user_id = ?", resp.User.ID).First(&vt).Error; err != nil {
		t.Fatalf("verification token: %v", err)
	}
	if vt.Token != sentToken {
		t.Errorf("mailed token %q != stored %q", sentToken, vt.Token)
	}

	w = doJSON(r, http.MethodPost, "/auth/register", gin.H{"name": "Ana", "email": "ana@example.com", "password": "secret1"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", w.Code)
	}
}

func TestRegister_ConcurrentDuplicateConflicts(t *testing.T) {
	_, db, r := newTestHandler(t, nil, nil)

	// Another request inserts the same email after the lookup but before the insert.
	var done bool
	err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_register", func(tx *gorm.DB) {
		if done || tx.Statement.Table != "users" {
			return
		}
		done = true
		other := &users.User{Name: "Other", Email: "ana@example.com"}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(other).Error; err != nil {
			tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	w := doJSON(r, http.MethodPost, "/auth/register", gin.H{"name": "Ana", "email": "ana@example.com", "password": "secret1"})
	if !done {
		t.Fatal("concurrent insert did not run")
	}
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", w.Code, w.Body)
	}
}

func TestRegister_Validation(t *testing.T) {
	_, _, r := newTestHandler(t, nil, nil)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing name", gin.H{"email": "a@b.com", "password": "secret1"}},
		{"bad email", gin.H{"name": "A", "email": "not-an-email", "password": "secret1"}},
		{"short password", gin.H{"name": "A", "email": "a@b.com", "password": "12345"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doJSON(r, http.MethodPost, "/auth/register", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestRegister_AdminEmailAndMailFailure(t *testing.T) {
	mail := &mockMailer{VerifyFn: func(context.Context, users.User, string) error {
		return errors.New("smtp down")
	}}
	_, _, r := newTestHandler(t, mail, nil)

	w := doJSON(r, http.MethodPost, "/auth/register", gin.H{"name": "Boss", "email": "boss@example.com", "password": "secret1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("mail failure must not fail registration: %d", w.Code)
	}
	if role := decode(t, w).User.Role; role != users.RoleAdmin {
		t.Errorf("role = %q, want admin", role)
	}
}

func TestLogin(t *testing.T) {
	_, db, r := newTestHandler(t, nil, nil)
	testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	sub := "google-sub"
	db.Create(&users.User{Name: "G", Email: "g@example.com", AuthProvider: users.ProviderGoogle, GoogleSub: &sub})

	tests := []struct {
		name  string
		email string
		pass  string
		want  int
	}{
		{"ok", "ANA@example.com", "secret123", http.StatusOK},
		{"wrong password", "ana@example.com", "nope", http.StatusUnauthorized},
		{"unknown", "who@example.com", "secret123", http.StatusUnauthorized},
		{"google account", "g@example.com", "secret123", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": tt.email, "password": tt.pass})
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && decode(t, w).Token == "" {
				t.Error("missing token")
			}
		})
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	var code string
	calls := 0
	mail := &mockMailer{ResetFn: func(_ context.Context, _ users.User, c string) error {
		calls++
		code = c
		return nil
	}}
	h, db, r := newTestHandler(t, mail, nil)
	testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)

	w := doJSON(r, http.MethodPost, "/auth/forgot-password", gin.H{"email": "nobody@example.com"})
	if w.Code != http.StatusOK || calls != 0 {
		t.Fatalf("unknown email: status = %d, mails = %d", w.Code, calls)
	}
	unknownMsg := decode(t, w).Message

	w = doJSON(r, http.MethodPost, "/auth/forgot-password", gin.H{"email": "ana@example.com"})
	if w.Code != http.StatusOK || calls != 1 {
		t.Fatalf("status = %d, mails = %d", w.Code, calls)
	}
	if decode(t, w).Message != unknownMsg {
		t.Error("response must not reveal whether the email exists")
	}
	if len(code) != 6 {
		t.Fatalf("code = %q, want 6 digits", code)
	}

	w = doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": "000000x", "newPassword": "newpass1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("wrong code: status = %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": code, "newPassword": "newpass1"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d: %s", w.Code, w.Body)
	}
	if w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "ana@example.com", "password": "newpass1"}); w.Code != http.StatusOK {
		t.Errorf("login with new password: %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": code, "newPassword": "again12"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("code reuse: status = %d, want 400", w.Code)
	}

	doJSON(r, http.MethodPost, "/auth/forgot-password", gin.H{"email": "ana@example.com"})
	h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w = doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": code, "newPassword": "again12"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expired code: status = %d, want 400", w.Code)
	}
}

func TestResetPassword_AttemptLimit(t *testing.T) {
	var code string
	mail := &mockMailer{ResetFn: func(_ context.Context, _ users.User, c string) error {
		code = c
		return nil
	}}
	_, db, r := newTestHandler(t, mail, nil)
	testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)

	doJSON(r, http.MethodPost, "/auth/forgot-password", gin.H{"email": "ana@example.com"})
	if code == "" {
		t.Fatal("no reset code mailed")
	}

	for i := 0; i < maxResetAttempts; i++ {
		w := doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": "wrong1", "newPassword": "newpass1"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: status = %d, want 400", i+1, w.Code)
		}
	}

	var u users.User
	if err := db.Where("email = ?", "ana@example.com").First(&u).Error; err != nil {
		t.Fatal(err)
	}
	if u.ResetPasswordToken != nil || u.ResetPasswordAttempts != 0 {
		t.Errorf("token = %v, attempts = %d, want cleared", u.ResetPasswordToken, u.ResetPasswordAttempts)
	}

	w := doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": code, "newPassword": "newpass1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("correct code after lockout: status = %d, want 400", w.Code)
	}

	doJSON(r, http.MethodPost, "/auth/forgot-password", gin.H{"email": "ana@example.com"})
	w = doJSON(r, http.MethodPost, "/auth/reset-password", gin.H{"email": "ana@example.com", "token": code, "newPassword": "newpass1"})
	if w.Code != http.StatusOK {
		t.Errorf("fresh code: status = %d: %s", w.Code, w.Body)
	}
}

func TestChangePassword(t *testing.T) {
	_, db, r := newTestHandler(t, nil, nil)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	auth := testutil.Bearer(t, u)

	w := doJSON(r, http.MethodPost, "/auth/change-password", gin.H{"oldPassword": "wrong", "newPassword": "newpass1"}, "Authorization", auth)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong old password: status = %d", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/auth/change-password", gin.H{"oldPassword": "secret123", "newPassword": "newpass1"}, "Authorization", auth)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if w := doJSON(r, http.MethodPost, "/auth/login", gin.H{"email": "ana@example.com", "password": "newpass1"}); w.Code != http.StatusOK {
		t.Errorf("login with changed password: %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/auth/change-password", gin.H{"oldPassword": "a", "newPassword": "b"}); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d", w.Code)
	}
}

func TestResendVerification(t *testing.T) {
	sent := 0
	mail := &mockMailer{VerifyFn: func(context.Context, users.User, string) error { sent++; return nil }}
	_, db, r := newTestHandler(t, mail, nil)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)

	for i := 0; i < 2; i++ {
		if w := doJSON(r, http.MethodPost, "/auth/resend-verification", gin.H{"email": "ana@example.com"}); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	var n int64
	db.Model(&users.VerificationToken{}).Where("user_id = ?", u.ID).Count(&n)
	if n != 1 || sent != 2 {
		t.Errorf("tokens = %d, mails = %d; want 1 live token and 2 mails", n, sent)
	}

	db.Model(&users.User{}).Where("id = ?", u.ID).Update("email_verified", true)
	if w := doJSON(r, http.MethodPost, "/auth/resend-verification", gin.H{"email": "ana@example.com"}); w.Code != http.StatusBadRequest {
		t.Errorf("verified user: status = %d", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/auth/resend-verification", gin.H{"email": "x@example.com"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d", w.Code)
	}
}
