package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/authctx"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const mariaID = "0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f"

// fakeAuth принимает только maria@example.com / s3cret.
type fakeAuth struct {
	down bool
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*gotrue.TokenResponse, error) {
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", gotrue.ErrUnavailable)
	}
	if email != "maria@example.com" || password != "s3cret" {
		return nil, &gotrue.APIError{Status: 400, Code: "invalid_credentials"}
	}
	return &gotrue.TokenResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		User:         gotrue.User{ID: mariaID, Email: email},
	}, nil
}

func (f *fakeAuth) RefreshSession(context.Context, string) (*gotrue.TokenResponse, error) {
	return nil, gotrue.ErrSessionInvalid
}

func (f *fakeAuth) SignOut(context.Context, string) error {
	if f.down {
		return gotrue.ErrUnavailable
	}
	return nil
}

type mariaResolver struct{}

func (mariaResolver) Resolve(_ context.Context, id, email string) *model.AuthUser {
	if id == mariaID {
		return &model.AuthUser{ID: id, Email: email, Nome: "Maria", Tipo: model.Aluno{}}
	}
	return &model.AuthUser{ID: id, Email: email, Nome: "Usuário", Tipo: model.Unknown{}}
}

func newTestContext(t *testing.T, auth *fakeAuth) *authctx.Context {
	t.Helper()
	f := &authctx.Factory{
		Client:    auth,
		Persister: sessionstore.NewMemoryPersister(),
		Resolver:  mariaResolver{},
		Logger:    testLogger(),
	}
	c := f.Open(context.Background(), "sid-1")
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := c.WaitReady(ctx); !ok {
		t.Fatal("контекст не загрузился")
	}
	return c
}

func withContext(c *authctx.Context, r *http.Request) *http.Request {
	return r.WithContext(authctx.WithContext(r.Context(), c))
}

func postLogin(h *AuthHandler, c *authctx.Context, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.HandleLogin(w, withContext(c, req))
	return w
}

func TestHandleLogin(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		from       string
		down       bool
		wantStatus int
		wantLoc    string
		wantBody   string
	}{
		{"успех с from", "maria@example.com", "s3cret", "/aluno?tab=treinos", false, http.StatusSeeOther, "/aluno?tab=treinos", ""},
		{"успех, внешний from игнорируется", "maria@example.com", "s3cret", "https://evil.example.com", false, http.StatusSeeOther, "/", ""},
		{"неверный пароль", "maria@example.com", "nope", "", false, http.StatusUnauthorized, "", "login.error.invalid_credentials"},
		{"некорректный email", "maria", "s3cret", "", false, http.StatusBadRequest, "", "login.error.validation"},
		{"auth-сервис недоступен", "maria@example.com", "s3cret", "", true, http.StatusServiceUnavailable, "", "login.error.network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext(t, &fakeAuth{down: tt.down})
			h := NewAuthHandler(time.Second, testLogger())

			w := postLogin(h, c, url.Values{
				"email":    {tt.email},
				"password": {tt.password},
				"from":     {tt.from},
			})

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидали %d", w.Code, tt.wantStatus)
			}
			if tt.wantLoc != "" && w.Header().Get("Location") != tt.wantLoc {
				t.Errorf("Location = %q, ожидали %q", w.Header().Get("Location"), tt.wantLoc)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("тело не содержит %q", tt.wantBody)
			}
			if authenticated := c.Snapshot().IsAuthenticated; authenticated != (tt.wantStatus == http.StatusSeeOther) {
				t.Errorf("IsAuthenticated = %v", authenticated)
			}
		})
	}
}

func TestHandleLoginPage_AlreadySignedIn(t *testing.T) {
	c := newTestContext(t, &fakeAuth{})
	h := NewAuthHandler(time.Second, testLogger())
	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	w := httptest.NewRecorder()
	h.HandleLoginPage(w, withContext(c, httptest.NewRequest(http.MethodGet, "/login?from=%2Faluno", nil)))

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/aluno" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestHandleLogout(t *testing.T) {
	for _, down := range []bool{false, true} {
		t.Run(fmt.Sprintf("down=%v", down), func(t *testing.T) {
			auth := &fakeAuth{}
			c := newTestContext(t, auth)
			if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
				t.Fatal(lerr)
			}
			auth.down = down

			h := NewAuthHandler(time.Second, testLogger())
			w := httptest.NewRecorder()
			h.HandleLogout(w, withContext(c, httptest.NewRequest(http.MethodPost, "/logout", nil)))

			if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
				t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
			}
			if s := c.Snapshot(); s.User != nil || s.IsAuthenticated {
				t.Errorf("после выхода: %+v", s)
			}
		})
	}
}

func TestHandleHome_RedirectsToRolePortal(t *testing.T) {
	c := newTestContext(t, &fakeAuth{})
	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	h := NewPortalHandler(time.Second, testLogger())
	w := httptest.NewRecorder()
	h.HandleHome(w, withContext(c, httptest.NewRequest(http.MethodGet, "/", nil)))

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/aluno" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestHandlePortal_RendersUser(t *testing.T) {
	c := newTestContext(t, &fakeAuth{})
	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	h := NewPortalHandler(time.Second, testLogger())
	w := httptest.NewRecorder()
	h.HandlePortal(w, withContext(c, httptest.NewRequest(http.MethodGet, "/aluno", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Maria") {
		t.Error("имя пользователя отсутствует на странице")
	}
}

func TestHandlePending_RoleUserRedirected(t *testing.T) {
	c := newTestContext(t, &fakeAuth{})
	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	h := NewPortalHandler(time.Second, testLogger())
	w := httptest.NewRecorder()
	h.HandlePending(w, withContext(c, httptest.NewRequest(http.MethodGet, "/pending", nil)))

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/aluno" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestHandleSetLanguage(t *testing.T) {
	tests := []struct {
		lang     string
		referer  string
		wantLang string
		wantLoc  string
	}{
		{"en", "http://example.com/aluno", "en", "/aluno"},
		{"ru", "", "pt", "/"},
		{"pt", "https://evil.example.com/x", "pt", "/"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/set-language", strings.NewReader("lang="+tt.lang))
		req.Host = "example.com"
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if tt.referer != "" {
			req.Header.Set("Referer", tt.referer)
		}
		w := httptest.NewRecorder()
		HandleSetLanguage(w, req)

		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != tt.wantLang {
			t.Errorf("lang=%q: cookie = %v", tt.lang, cookies)
		}
		if loc := w.Header().Get("Location"); loc != tt.wantLoc {
			t.Errorf("lang=%q: Location = %q, ожидали %q", tt.lang, loc, tt.wantLoc)
		}
	}
}

// TestHandleAuthEvents — поток отдаёт текущее состояние, затем вход.
func TestHandleAuthEvents(t *testing.T) {
	c := newTestContext(t, &fakeAuth{})
	h := NewEventsHandler(time.Minute, testLogger())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleAuthEvents(w, withContext(c, r))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := make(chan authStateEvent, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev authStateEvent
				if json.Unmarshal([]byte(data), &ev) == nil {
					events <- ev
				}
			}
		}
		close(events)
	}()

	first := <-events
	if first.IsAuthenticated || first.User != nil {
		t.Errorf("начальное состояние: %+v", first)
	}

	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	for ev := range events {
		if ev.User != nil && !ev.Resolving {
			if ev.User.Tipo != "aluno" || ev.User.Nome != "Maria" || !ev.IsAuthenticated {
				t.Errorf("событие: %+v", ev)
			}
			return
		}
	}
	t.Fatal("событие с пользователем не получено")
}
