package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
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

const testSID = "7a1f2c9e-0d4b-4e8a-9f6c-2b3d4e5f6a7b"

type noAuth struct{}

func (noAuth) SignInWithPassword(context.Context, string, string) (*gotrue.TokenResponse, error) {
	return nil, gotrue.ErrInvalidCredentials
}

func (noAuth) RefreshSession(context.Context, string) (*gotrue.TokenResponse, error) {
	return nil, gotrue.ErrSessionInvalid
}

func (noAuth) SignOut(context.Context, string) error { return nil }

// usersResolver возвращает заранее заданных пользователей.
type usersResolver map[string]*model.AuthUser

func (u usersResolver) Resolve(_ context.Context, id, email string) *model.AuthUser {
	if user, ok := u[id]; ok {
		return user
	}
	return &model.AuthUser{ID: id, Email: email, Nome: "Usuário", Tipo: model.Unknown{}}
}

// blockingPersister не отдаёт сессию, пока не закрыт release.
type blockingPersister struct {
	sessionstore.Persister
	release chan struct{}
}

func (p *blockingPersister) Load(ctx context.Context, key string) (*model.Session, error) {
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.Persister.Load(ctx, key)
}

// fakeAdmins — проверка администратора со счётчиком вызовов.
type fakeAdmins struct {
	admins map[string]bool
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeAdmins) IsAdmin(ctx context.Context, userID string) (bool, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if f.err != nil {
		return false, f.err
	}
	return f.admins[userID], nil
}

type fixture struct {
	persister sessionstore.Persister
	users     usersResolver
	signedIn  string
}

// open поднимает экземпляр приложения и ждёт окончания загрузки.
func (f fixture) open(t *testing.T, wait bool) *authctx.Context {
	t.Helper()
	persister := f.persister
	if persister == nil {
		persister = sessionstore.NewMemoryPersister()
	}
	if f.signedIn != "" {
		err := persister.Save(context.Background(), testSID, &model.Session{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
			User:         model.SessionUser{ID: f.signedIn, Email: f.signedIn + "@example.com"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	factory := &authctx.Factory{
		Client:    noAuth{},
		Persister: persister,
		Resolver:  f.users,
		Logger:    testLogger(),
	}
	c := factory.Open(context.Background(), testSID)
	t.Cleanup(c.Close)

	if wait {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, ok := c.WaitSettled(ctx); !ok {
			t.Fatal("контекст не загрузился")
		}
	}
	return c
}

func newTestGuards(admins AdminChecker) *Guards {
	return NewGuards(admins, 50*time.Millisecond, 50*time.Millisecond, testLogger())
}

// serve выполняет запрос через handler с Auth Context в контексте.
func serve(c *authctx.Context, h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(authctx.WithContext(req.Context(), c))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func children(reached *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	})
}

const (
	alunoID = "aluno-1"
	adminID = "admin-1"
	profID  = "prof-1"
)

func testUsers() usersResolver {
	return usersResolver{
		alunoID: {ID: alunoID, Nome: "Maria", Tipo: model.Aluno{}},
		adminID: {ID: adminID, Nome: "Ana", Tipo: model.Admin{}},
		profID:  {ID: profID, Nome: "Carla", Tipo: model.Professor{}},
	}
}

func TestProtectedRoute(t *testing.T) {
	t.Run("загрузка — заглушка", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		c := fixture{
			persister: &blockingPersister{Persister: sessionstore.NewMemoryPersister(), release: release},
			users:     testUsers(),
		}.open(t, false)

		var reached bool
		w := serve(c, newTestGuards(&fakeAdmins{}).ProtectedRoute(children(&reached)), "/aluno")

		if reached {
			t.Error("дочерний обработчик вызван во время загрузки")
		}
		if w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `http-equiv="refresh"`) {
			t.Error("заглушка без автообновления")
		}
		if loc := w.Header().Get("Location"); loc != "" {
			t.Errorf("редирект во время загрузки: %q", loc)
		}
	})

	t.Run("аутентифицирован — дочерний обработчик", func(t *testing.T) {
		c := fixture{users: testUsers(), signedIn: alunoID}.open(t, true)

		var reached bool
		w := serve(c, newTestGuards(&fakeAdmins{}).ProtectedRoute(children(&reached)), "/aluno")
		if !reached || w.Code != http.StatusOK {
			t.Errorf("reached = %v, status = %d", reached, w.Code)
		}
	})

	t.Run("без сессии — вход с from", func(t *testing.T) {
		c := fixture{users: testUsers()}.open(t, true)

		var reached bool
		w := serve(c, newTestGuards(&fakeAdmins{}).ProtectedRoute(children(&reached)), "/aluno/treinos?semana=2")

		if reached {
			t.Error("дочерний обработчик вызван без сессии")
		}
		if w.Code != http.StatusFound {
			t.Fatalf("status = %d", w.Code)
		}
		want := "/login?from=%2Faluno%2Ftreinos%3Fsemana%3D2"
		if loc := w.Header().Get("Location"); loc != want {
			t.Errorf("Location = %q, ожидали %q", loc, want)
		}
	})
}

func TestAdminGuard(t *testing.T) {
	tests := []struct {
		name        string
		signedIn    string
		admins      *fakeAdmins
		wantStatus  int
		wantReached bool
		wantCalls   int32
		wantLoc     string
		wantBody    string
	}{
		{
			name:       "без сессии — вход без проверки",
			admins:     &fakeAdmins{admins: map[string]bool{adminID: true}},
			wantStatus: http.StatusFound,
			wantCalls:  0,
			wantLoc:    "/login?from=%2Fadmin",
		},
		{
			name:        "администратор",
			signedIn:    adminID,
			admins:      &fakeAdmins{admins: map[string]bool{adminID: true}},
			wantStatus:  http.StatusOK,
			wantReached: true,
			wantCalls:   1,
		},
		{
			name:       "не администратор — отказ и уход домой",
			signedIn:   alunoID,
			admins:     &fakeAdmins{admins: map[string]bool{adminID: true}},
			wantStatus: http.StatusForbidden,
			wantCalls:  1,
			wantBody:   "url=/aluno",
		},
		{
			name:       "ошибка проверки — отказ",
			signedIn:   adminID,
			admins:     &fakeAdmins{err: errors.New("connection reset")},
			wantStatus: http.StatusForbidden,
			wantCalls:  1,
			wantBody:   "url=/pending",
		},
		{
			name:       "медленная проверка — заглушка",
			signedIn:   adminID,
			admins:     &fakeAdmins{admins: map[string]bool{adminID: true}, delay: time.Second},
			wantStatus: http.StatusOK,
			wantCalls:  1,
			wantBody:   `http-equiv="refresh" content="1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixture{users: testUsers(), signedIn: tt.signedIn}.open(t, true)

			var reached bool
			w := serve(c, newTestGuards(tt.admins).AdminGuard(children(&reached)), "/admin")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидали %d", w.Code, tt.wantStatus)
			}
			if reached != tt.wantReached {
				t.Errorf("reached = %v, ожидали %v", reached, tt.wantReached)
			}
			if got := tt.admins.calls.Load(); got != tt.wantCalls {
				t.Errorf("вызовов IsAdmin = %d, ожидали %d", got, tt.wantCalls)
			}
			if tt.wantLoc != "" && w.Header().Get("Location") != tt.wantLoc {
				t.Errorf("Location = %q, ожидали %q", w.Header().Get("Location"), tt.wantLoc)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("тело не содержит %q", tt.wantBody)
			}
		})
	}
}

func TestRoleRoute(t *testing.T) {
	tests := []struct {
		name       string
		signedIn   string
		route      model.RoleKind
		wantStatus int
	}{
		{"ученик в своём портале", alunoID, model.KindAluno, http.StatusOK},
		{"ученик в портале преподавателя", alunoID, model.KindProfessor, http.StatusForbidden},
		{"преподаватель в своём портале", profID, model.KindProfessor, http.StatusOK},
		{"без роли", "stranger", model.KindAluno, http.StatusForbidden},
		{"без сессии", "", model.KindAluno, http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixture{users: testUsers(), signedIn: tt.signedIn}.open(t, true)

			var reached bool
			h := newTestGuards(&fakeAdmins{}).RoleRoute(tt.route)(children(&reached))
			w := serve(c, h, "/"+string(tt.route))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, ожидали %d", w.Code, tt.wantStatus)
			}
			if reached != (tt.wantStatus == http.StatusOK) {
				t.Errorf("reached = %v", reached)
			}
		})
	}
}

func TestGuards_MissingContext(t *testing.T) {
	var reached bool
	h := newTestGuards(&fakeAdmins{}).ProtectedRoute(children(&reached))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aluno", nil))
	if w.Code != http.StatusInternalServerError || reached {
		t.Errorf("status = %d, reached = %v", w.Code, reached)
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"/aluno", "/aluno"},
		{"/aluno?tab=x", "/aluno?tab=x"},
		{"", "/"},
		{"https://evil.example.com", "/"},
		{"//evil.example.com/x", "/"},
		{`/\evil.example.com`, "/"},
		{"aluno", "/"},
		{"/login", "/"},
	}
	for _, tt := range tests {
		if got := SafeRedirect(tt.from, "/"); got != tt.want {
			t.Errorf("SafeRedirect(%q) = %q, ожидали %q", tt.from, got, tt.want)
		}
	}
}

func TestLoginURL(t *testing.T) {
	if got := LoginURL("/"); got != "/login" {
		t.Errorf("LoginURL(/) = %q", got)
	}
	if got := LoginURL("/admin"); got != "/login?from=%2Fadmin" {
		t.Errorf("LoginURL(/admin) = %q", got)
	}
}
