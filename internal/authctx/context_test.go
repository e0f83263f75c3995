package authctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/gotrue"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/service"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/sessionstore"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// account — учётная запись fake auth-сервиса.
type account struct {
	id       string
	password string
}

// fakeAuth — auth-сервис с фиксированным набором учётных записей.
type fakeAuth struct {
	accounts    map[string]account
	unavailable bool
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*gotrue.TokenResponse, error) {
	if f.unavailable {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", gotrue.ErrUnavailable)
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return nil, &gotrue.APIError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	return &gotrue.TokenResponse{
		AccessToken:  "access-" + acc.id,
		RefreshToken: "refresh-" + acc.id,
		ExpiresIn:    3600,
		User:         gotrue.User{ID: acc.id, Email: email},
	}, nil
}

func (f *fakeAuth) RefreshSession(context.Context, string) (*gotrue.TokenResponse, error) {
	return nil, gotrue.ErrSessionInvalid
}

func (f *fakeAuth) SignOut(context.Context, string) error { return nil }

// stubRoles — таблицы ролей в памяти: kind → user_id → nome.
type stubRoles map[model.RoleKind]map[string]string

func (s stubRoles) Exists(_ context.Context, kind model.RoleKind, userID string) (bool, error) {
	_, ok := s[kind][userID]
	return ok, nil
}

func (s stubRoles) DisplayName(_ context.Context, kind model.RoleKind, userID string) (string, error) {
	nome, ok := s[kind][userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return nome, nil
}

func (s stubRoles) GetProfessorProfile(_ context.Context, userID string) (*model.ExtendedProfile, error) {
	nome, ok := s[model.KindProfessor][userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.ExtendedProfile{UserID: userID, Nome: nome}, nil
}

func (s stubRoles) Upsert(context.Context, *model.RoleRecord) error      { return nil }
func (s stubRoles) Delete(context.Context, model.RoleKind, string) error { return nil }

const mariaID = "0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f"

func newTestContext(t *testing.T, auth *fakeAuth, roles stubRoles) *Context {
	t.Helper()
	f := &Factory{
		Client:    auth,
		Persister: sessionstore.NewMemoryPersister(),
		Resolver:  service.NewResolver(roles, nil, time.Second, testLogger()),
		Logger:    testLogger(),
	}
	c := f.Open(context.Background(), "browser-session-1")
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := c.WaitReady(ctx); !ok {
		t.Fatal("контекст не загрузился")
	}
	return c
}

func mariaFixture() (*fakeAuth, stubRoles) {
	auth := &fakeAuth{accounts: map[string]account{
		"maria@example.com": {id: mariaID, password: "s3cret"},
	}}
	roles := stubRoles{
		model.KindAluno: {mariaID: "Maria"},
	}
	return auth, roles
}

// TestLogin_AlunoMaria — вход ученицы Maria публикует
// {tipo: aluno, nome: Maria, isAuthenticated: true}.
func TestLogin_AlunoMaria(t *testing.T) {
	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)

	if s := c.Snapshot(); s.IsAuthenticated || s.User != nil {
		t.Fatalf("до входа: %+v", s)
	}

	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatalf("Login() = %v", lerr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, ok := c.WaitSettled(ctx)
	if !ok {
		t.Fatalf("пользователь не разрешён: %+v", s)
	}
	if !s.IsAuthenticated {
		t.Error("IsAuthenticated = false")
	}
	if s.User == nil || s.User.Kind() != model.KindAluno || s.User.Nome != "Maria" {
		t.Errorf("User = %+v, ожидали {aluno, Maria}", s.User)
	}
}

func TestLogin_Errors(t *testing.T) {
	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)

	tests := []struct {
		name     string
		email    string
		password string
		down     bool
		want     LoginErrorKind
	}{
		{"неверный пароль", "maria@example.com", "wrong", false, LoginInvalidCredentials},
		{"пустой email", "  ", "x", false, LoginValidation},
		{"пустой пароль", "maria@example.com", "", false, LoginValidation},
		{"сервис недоступен", "maria@example.com", "s3cret", true, LoginNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth.unavailable = tt.down
			defer func() { auth.unavailable = false }()

			lerr := c.Login(context.Background(), tt.email, tt.password)
			if lerr == nil {
				t.Fatal("Login() = nil, ожидали ошибку")
			}
			if lerr.Kind != tt.want {
				t.Errorf("Kind = %q, ожидали %q", lerr.Kind, tt.want)
			}
			if s := c.Snapshot(); s.IsAuthenticated {
				t.Error("после неудачного входа IsAuthenticated = true")
			}
		})
	}
}

func TestClassifyLoginError(t *testing.T) {
	tests := []struct {
		err  error
		want LoginErrorKind
	}{
		{&gotrue.APIError{Status: 400, Code: "invalid_credentials"}, LoginInvalidCredentials},
		{&gotrue.APIError{Status: 422, Code: "validation_failed", Message: "bad email"}, LoginValidation},
		{&gotrue.APIError{Status: 503}, LoginNetwork},
		{context.DeadlineExceeded, LoginNetwork},
		{errors.New("что-то странное"), LoginUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyLoginError(tt.err).Kind; got != tt.want {
			t.Errorf("ClassifyLoginError(%v) = %q, ожидали %q", tt.err, got, tt.want)
		}
	}
}

// TestLogout_ClearsUser — сразу после Logout пользователь отсутствует.
func TestLogout_ClearsUser(t *testing.T) {
	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)

	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := c.WaitSettled(ctx); !ok {
		t.Fatal("вход не завершился")
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() = %v", err)
	}
	s := c.Snapshot()
	if s.User != nil || s.IsAuthenticated {
		t.Errorf("после Logout: %+v", s)
	}
}

// TestLogout_DuringResolution — выход во время разрешения роли не
// оставляет пользователя в контексте.
func TestLogout_DuringResolution(t *testing.T) {
	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)

	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if s := c.Snapshot(); s.User != nil || s.IsAuthenticated {
		t.Errorf("после Logout: %+v", s)
	}
}

func TestSubscribe(t *testing.T) {
	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)

	got := make(chan Snapshot, 8)
	unsubscribe := c.Subscribe(func(s Snapshot) {
		select {
		case got <- s:
		default:
		}
	})
	defer unsubscribe()

	if lerr := c.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Settled() && s.User != nil {
				if s.Kind() != model.KindAluno {
					t.Errorf("Kind() = %q", s.Kind())
				}
				return
			}
		case <-deadline:
			t.Fatal("снимок с пользователем не получен")
		}
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("FromContext() без значения должен вернуть nil")
	}

	auth, roles := mariaFixture()
	c := newTestContext(t, auth, roles)
	ctx := WithContext(context.Background(), c)
	if FromContext(ctx) != c {
		t.Error("FromContext() вернул другой контекст")
	}
}

// TestSync_SharedPersister — два экземпляра с одним ключом и общим
// хранилищем (две реплики): выход на одном виден другому после Sync.
func TestSync_SharedPersister(t *testing.T) {
	auth, roles := mariaFixture()
	f := &Factory{
		Client:    auth,
		Persister: sessionstore.NewMemoryPersister(),
		Resolver:  service.NewResolver(roles, nil, time.Second, testLogger()),
		Logger:    testLogger(),
	}
	replicaA := f.Open(context.Background(), "browser-session-1")
	t.Cleanup(replicaA.Close)
	replicaB := f.Open(context.Background(), "browser-session-1")
	t.Cleanup(replicaB.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := replicaB.WaitReady(ctx); !ok {
		t.Fatal("реплика B не загрузилась")
	}

	if lerr := replicaA.Login(context.Background(), "maria@example.com", "s3cret"); lerr != nil {
		t.Fatal(lerr)
	}

	replicaB.Sync(context.Background())
	s, ok := replicaB.WaitSettled(ctx)
	if !ok || s.User == nil || s.User.ID != mariaID {
		t.Fatalf("реплика B после входа на A: %+v", s)
	}

	if err := replicaA.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	replicaB.Sync(context.Background())
	if s := replicaB.Snapshot(); s.User != nil || s.IsAuthenticated {
		t.Errorf("реплика B после выхода на A: %+v", s)
	}
}
