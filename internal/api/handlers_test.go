package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cliphive/internal/auth"
	"cliphive/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return NewHandler(store, auth.NewSessionManager(store, issuer)), store
}

func registerTestUser(t *testing.T, store *storage.Storage, username string) string {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		FullName: "User " + username,
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user.ID
}

func doJSON(t *testing.T, h http.Handler, method, target string, body interface{}, cookies []*http.Cookie, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, recorder.Body.String())
	}
	return env
}

func sessionCookies(recorder *httptest.ResponseRecorder) (access, refresh *http.Cookie) {
	for _, cookie := range recorder.Result().Cookies() {
		switch cookie.Name {
		case AccessCookieName:
			access = cookie
		case RefreshCookieName:
			refresh = cookie
		}
	}
	return access, refresh
}

func loginTestUser(t *testing.T, h *Handler, username string) (access, refresh *http.Cookie) {
	t.Helper()
	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": "secret123",
	}, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, recorder.Code, recorder.Body.String())
	}
	access, refresh = sessionCookies(recorder)
	if access == nil || refresh == nil {
		t.Fatalf("login %s did not set both session cookies", username)
	}
	return access, refresh
}

func TestRegisterAndDuplicateConflict(t *testing.T) {
	h, _ := newTestHandler(t)
	authHandler := http.HandlerFunc(h.HandleAuth)

	payload := map[string]string{
		"username": "Casey",
		"email":    "casey@example.com",
		"fullName": "Casey Morgan",
		"password": "secret123",
	}
	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/register", payload, nil, "")
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201 (body %s)", recorder.Code, recorder.Body.String())
	}
	env := decodeEnvelope(t, recorder)
	if !env.Success || env.StatusCode != http.StatusCreated {
		t.Fatalf("envelope = %+v, want success with statusCode 201", env)
	}
	body := recorder.Body.String()
	if strings.Contains(body, "passwordHash") || strings.Contains(body, "refreshTokenHash") {
		t.Fatalf("register response leaks credential fields: %s", body)
	}
	if !strings.Contains(body, `"username":"casey"`) {
		t.Fatalf("register response should carry the normalized username: %s", body)
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/register", payload, nil, "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", recorder.Code)
	}
	env = decodeEnvelope(t, recorder)
	if env.Success {
		t.Fatal("duplicate register envelope should not report success")
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")

	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "casey@example.com",
		"password": "secret123",
	}, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
	access, refresh := sessionCookies(recorder)
	for name, cookie := range map[string]*http.Cookie{"access": access, "refresh": refresh} {
		if cookie == nil {
			t.Fatalf("%s cookie missing", name)
		}
		if !cookie.HttpOnly {
			t.Errorf("%s cookie should be HttpOnly", name)
		}
		if cookie.SameSite != http.SameSiteStrictMode {
			t.Errorf("%s cookie SameSite = %v, want strict", name, cookie.SameSite)
		}
		if cookie.Secure {
			t.Errorf("%s cookie should not be Secure over plain HTTP in auto mode", name)
		}
		if cookie.Path != "/" {
			t.Errorf("%s cookie path = %q, want /", name, cookie.Path)
		}
	}
	if strings.Contains(recorder.Body.String(), "passwordHash") {
		t.Fatalf("login response leaks credential fields: %s", recorder.Body.String())
	}
}

func TestLoginAcceptsIdentifierField(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)

	for _, identifier := range []string{"casey", "casey@example.com"} {
		recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
			"identifier": identifier,
			"password":   "secret123",
		}, nil, "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("login with identifier %q: status = %d (body %s)", identifier, recorder.Code, recorder.Body.String())
		}
		access, refresh := sessionCookies(recorder)
		if access == nil || refresh == nil {
			t.Fatalf("login with identifier %q did not set both session cookies", identifier)
		}
	}

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "casey",
		"password":   "wrong-password",
	}, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("identifier with wrong password status = %d, want 401", recorder.Code)
	}
}

func TestErrorBodyCarriesErrorsArray(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")

	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "casey",
		"password":   "wrong-password",
	}, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if string(body["success"]) != "false" {
		t.Fatalf("success = %s, want false", body["success"])
	}
	if string(body["data"]) != "null" {
		t.Fatalf("data = %s, want null", body["data"])
	}
	if string(body["errors"]) != "[]" {
		t.Fatalf("errors = %s, want []", body["errors"])
	}
}

func TestLoginSecureCookieForForwardedTLS(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")

	body, _ := json.Marshal(map[string]string{"username": "casey", "password": "secret123"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("X-Forwarded-Proto", "https")
	recorder := httptest.NewRecorder()
	h.HandleAuth(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d", recorder.Code)
	}
	access, _ := sessionCookies(recorder)
	if access == nil || !access.Secure {
		t.Fatal("access cookie should be Secure when the proxy reports HTTPS")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "casey",
		"password": "wrong-password",
	}, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "nobody",
		"password": "secret123",
	}, nil, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", recorder.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)
	_, refresh := loginTestUser(t, h, "casey")

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", nil, []*http.Cookie{refresh}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("refresh status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
	_, rotated := sessionCookies(recorder)
	if rotated == nil {
		t.Fatal("refresh did not set a new refresh cookie")
	}
	if rotated.Value == refresh.Value {
		t.Fatal("refresh must rotate the refresh token")
	}

	// The consumed token is dead.
	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", nil, []*http.Cookie{refresh}, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", recorder.Code)
	}
	env := decodeEnvelope(t, recorder)
	if !strings.Contains(env.Message, "expired or used") {
		t.Fatalf("replayed refresh message = %q", env.Message)
	}

	// The rotated token still works.
	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", nil, []*http.Cookie{rotated}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("rotated refresh status = %d", recorder.Code)
	}
}

func TestRefreshAcceptsBodyToken(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "casey",
		"password": "secret123",
	}, nil, "")
	env := decodeEnvelope(t, recorder)
	data, _ := env.Data.(map[string]interface{})
	token, _ := data["refreshToken"].(string)
	if token == "" {
		t.Fatalf("login response missing refreshToken: %+v", env.Data)
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": token,
	}, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("body refresh status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
}

func TestRefreshWithoutTokenIsUnauthorized(t *testing.T) {
	h, _ := newTestHandler(t)
	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, "/api/auth/refresh", nil, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without token status = %d, want 401", recorder.Code)
	}
}

func TestLogoutClearsCookiesAndInvalidatesRefresh(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)
	access, refresh := loginTestUser(t, h, "casey")

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/logout", nil, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("logout status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == AccessCookieName || cookie.Name == RefreshCookieName {
			if cookie.MaxAge != -1 {
				t.Errorf("cookie %s MaxAge = %d, want -1", cookie.Name, cookie.MaxAge)
			}
		}
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", nil, []*http.Cookie{refresh}, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", recorder.Code)
	}
}

func TestSessionEndpointResolvesBearerAndCookie(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)
	access, _ := loginTestUser(t, h, "casey")

	recorder := doJSON(t, authHandler, http.MethodGet, "/api/auth/session", nil, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("session via cookie status = %d", recorder.Code)
	}

	recorder = doJSON(t, authHandler, http.MethodGet, "/api/auth/session", nil, nil, access.Value)
	if recorder.Code != http.StatusOK {
		t.Fatalf("session via bearer status = %d", recorder.Code)
	}

	recorder = doJSON(t, authHandler, http.MethodGet, "/api/auth/session", nil, nil, "not-a-token")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("session with garbage token status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, authHandler, http.MethodGet, "/api/auth/session", nil, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("session without credentials status = %d, want 401", recorder.Code)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)
	access, _ := loginTestUser(t, h, "casey")

	recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/password", map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "next-secret-9",
	}, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/password", map[string]string{
		"currentPassword": "secret123",
		"newPassword":     "next-secret-9",
	}, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("change password status = %d (body %s)", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, authHandler, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "casey",
		"password": "next-secret-9",
	}, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d", recorder.Code)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	h, _ := newTestHandler(t)
	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, "/api/auth/register", map[string]string{
		"username": "casey",
		"email":    "casey@example.com",
		"fullName": "Casey Morgan",
		"password": "secret123",
		"isAdmin":  "true",
	}, nil, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", recorder.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	usersHandler := http.HandlerFunc(h.HandleUsers)
	access, _ := loginTestUser(t, h, "casey")

	recorder := doJSON(t, usersHandler, http.MethodPatch, "/api/users/me", map[string]string{
		"fullName":  "Casey M. Morgan",
		"avatarUrl": "https://cdn.example.com/avatars/casey.png",
	}, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("profile update status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "Casey M. Morgan") {
		t.Fatalf("profile update response missing new name: %s", recorder.Body.String())
	}

	recorder = doJSON(t, usersHandler, http.MethodGet, "/api/users/me", nil, nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated profile read status = %d, want 401", recorder.Code)
	}
}

func TestWatchHistoryEndpoint(t *testing.T) {
	h, store := newTestHandler(t)
	ownerID := registerTestUser(t, store, "casey")
	video, err := store.CreateVideo(storage.CreateVideoParams{
		OwnerID:  ownerID,
		Title:    "First upload",
		VideoURL: "https://cdn.example.com/v/1.mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	access, _ := loginTestUser(t, h, "casey")

	recorder := doJSON(t, http.HandlerFunc(h.HandleVideos), http.MethodGet, "/api/videos/"+video.ID, nil, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("watch video status = %d", recorder.Code)
	}

	recorder = doJSON(t, http.HandlerFunc(h.HandleUsers), http.MethodGet, "/api/users/me/history", nil, []*http.Cookie{access}, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("history status = %d (body %s)", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), video.ID) {
		t.Fatalf("history should include watched video: %s", recorder.Body.String())
	}
}

func TestMethodNotAllowedEnvelope(t *testing.T) {
	h, _ := newTestHandler(t)
	recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodDelete, "/api/auth/login", nil, nil, "")
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
	env := decodeEnvelope(t, recorder)
	if env.Success || env.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestUnknownAuthRouteIs404(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, target := range []string{"/api/auth/", "/api/auth/unknown", "/api/auth/login/extra"} {
		recorder := doJSON(t, http.HandlerFunc(h.HandleAuth), http.MethodPost, target, nil, nil, "")
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", target, recorder.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	recorder := doJSON(t, http.HandlerFunc(h.HandleHealth), http.MethodGet, "/healthz", nil, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"status":"ok"`) {
		t.Fatalf("health body = %s", recorder.Body.String())
	}
}

func TestUploadsRequireObjectStorage(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	access, _ := loginTestUser(t, h, "casey")

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	req.AddCookie(access)
	recorder := httptest.NewRecorder()
	h.HandleUploads(recorder, req)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("upload without object storage status = %d, want 503 (body %s)", recorder.Code, recorder.Body.String())
	}
}

func TestConcurrentHTTPRefreshSingleWinner(t *testing.T) {
	h, store := newTestHandler(t)
	registerTestUser(t, store, "casey")
	authHandler := http.HandlerFunc(h.HandleAuth)
	_, refresh := loginTestUser(t, h, "casey")

	const attempts = 6
	results := make(chan int, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			recorder := doJSON(t, authHandler, http.MethodPost, "/api/auth/refresh", nil, []*http.Cookie{refresh}, "")
			results <- recorder.Code
		}()
	}
	winners := 0
	for i := 0; i < attempts; i++ {
		switch code := <-results; code {
		case http.StatusOK:
			winners++
		case http.StatusUnauthorized:
		default:
			t.Fatalf("unexpected refresh status %d", code)
		}
	}
	if winners != 1 {
		t.Fatalf("concurrent refresh winners = %d, want exactly 1", winners)
	}
}
