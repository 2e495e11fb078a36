package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "role": Role(c), "email": c.GetString("email")})
	})
	r.GET("/admin", AuthMiddleware(secret), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := authRouter()
	valid := sign(t, jwt.MapClaims{
		"user_id": "u-1", "email": "ana@example.com", "role": "user",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, secret)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", valid, http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()}, "other"), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}, secret), http.StatusUnauthorized},
		{"numeric user id", "Bearer " + sign(t, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(time.Hour).Unix()}, secret), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var got map[string]string
	json.Unmarshal(w.Body.Bytes(), &got)
	if got["user_id"] != "u-1" || got["role"] != "user" || got["email"] != "ana@example.com" {
		t.Errorf("claims in context = %v", got)
	}
}

func TestRequireRole(t *testing.T) {
	r := authRouter()
	exp := time.Now().Add(time.Hour).Unix()

	for role, want := range map[string]int{"admin": http.StatusNoContent, "user": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "u", "role": role, "exp": exp}, secret))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("role %s: status = %d, want %d", role, w.Code, want)
		}
	}

	noRole := gin.New()
	noRole.GET("/", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	noRole.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no role: status = %d, want 401", w.Code)
	}
}

func TestSanitizeInput(t *testing.T) {
	r := gin.New()
	r.Use(SanitizeInput())
	r.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.Data(http.StatusOK, "application/json", body)
	})

	in := `{"name":"<script>alert(1)</script>Ana","password":"<b>p@ss</b>","idToken":"a<b>c","age":3}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(in)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	json.Unmarshal(w.Body.Bytes(), &got)
	if got["name"] != "Ana" {
		t.Errorf("name = %q, want markup stripped", got["name"])
	}
	if got["password"] != "<b>p@ss</b>" || got["idToken"] != "a<b>c" {
		t.Errorf("secrets were modified: %v", got)
	}
	if got["age"] != float64(3) {
		t.Errorf("non-string value changed: %v", got["age"])
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("{not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed: status = %d, want 400", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	l := NewIPLimiter(1, 2)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.Use(RateLimit(l))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := hit("10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := hit("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
	if w := hit("10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("other ip limited: %d", w.Code)
	}

	now = now.Add(time.Second)
	if w := hit("10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("after refill: status = %d", w.Code)
	}
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	requests []recordedRequest
}

func (f *fakeRecorder) RecordSubmission(string) {}
func (f *fakeRecorder) RecordProcessing(string) {}
func (f *fakeRecorder) RecordPaymentIntent(string, bool) {}
func (f *fakeRecorder) RecordPaymentConfirmed(string, string) {}
func (f *fakeRecorder) RecordReceiptSent() {}
func (f *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, status})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	rec := &fakeRecorder{}

	r := gin.New()
	r.Use(RequestLogger(logger, rec))
	r.GET("/api/analise/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analise/abc", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.requests) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(rec.requests))
	}
	if rec.requests[0] != (recordedRequest{"GET", "/api/analise/:id", 404}) {
		t.Errorf("first = %+v", rec.requests[0])
	}
	if rec.requests[1].route != "unmatched" {
		t.Errorf("second route = %q", rec.requests[1].route)
	}

	line, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "WARN" || entry["path"] != "/api/analise/abc" || entry["status"] != float64(404) {
		t.Errorf("log entry = %v", entry)
	}
}
