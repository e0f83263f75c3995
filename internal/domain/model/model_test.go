package model

import (
	"testing"
	"time"
)

func TestAuthUserProfile(t *testing.T) {
	profile := &ExtendedProfile{UserID: "u1", Nome: "Carla", Especialidade: "Pilates"}

	tests := []struct {
		name string
		user *AuthUser
		want *ExtendedProfile
	}{
		{"преподаватель с профилем", &AuthUser{Tipo: Professor{Profile: profile}}, profile},
		{"преподаватель без профиля", &AuthUser{Tipo: Professor{}}, nil},
		{"ученик", &AuthUser{Tipo: Aluno{}}, nil},
		{"админ", &AuthUser{Tipo: Admin{}}, nil},
		{"неизвестная роль", &AuthUser{Tipo: Unknown{}}, nil},
		{"nil пользователь", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Profile(); got != tt.want {
				t.Errorf("Profile() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestRoleFromKind(t *testing.T) {
	for _, k := range []RoleKind{KindProfessor, KindAluno, KindAdmin, KindUnknown} {
		if got := RoleFromKind(k).Kind(); got != k {
			t.Errorf("RoleFromKind(%q).Kind() = %q", k, got)
		}
	}
	if got := RoleFromKind("personal").Kind(); got != KindUnknown {
		t.Errorf("RoleFromKind(personal) = %q, хотели unknown", got)
	}
	if KindOf(nil) != KindUnknown {
		t.Error("KindOf(nil) должен быть unknown")
	}
	var u *AuthUser
	if u.Kind() != KindUnknown {
		t.Error("(*AuthUser)(nil).Kind() должен быть unknown")
	}
}

func TestSessionIsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"через час", time.Now().Add(time.Hour), false},
		{"через 10 секунд — в пределах буфера", time.Now().Add(10 * time.Second), true},
		{"в прошлом", time.Now().Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expires}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, хотели %v", got, tt.want)
			}
		})
	}
}
