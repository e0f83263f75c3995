package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
)

const validSeed = `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
    nome: Maria
    email: maria@example.com
  - user_id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
    role: professor
    nome: Carla
    especialidade: Pilates
    cref: 012345-G/SP
`

func TestSeeder_ParseAndApply(t *testing.T) {
	repo := newFakeRoleRepo()
	s := NewSeeder(repo, nil, testLogger())

	records, err := s.ParseSeed(strings.NewReader(validSeed))
	if err != nil {
		t.Fatalf("ParseSeed() ошибка: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("записей = %d, ожидали 2", len(records))
	}
	if records[1].CREF != "012345-G/SP" {
		t.Errorf("CREF = %q", records[1].CREF)
	}

	if err := s.Apply(context.Background(), records); err != nil {
		t.Fatalf("Apply() ошибка: %v", err)
	}

	r := NewResolver(repo, nil, 0, testLogger())
	if got := r.ResolveRole(context.Background(), "0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f").Kind(); got != model.KindAluno {
		t.Errorf("после seed роль = %q, ожидали aluno", got)
	}
}

func TestSeeder_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"неизвестная роль", `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: personal
    nome: X
`},
		{"не UUID", `
roles:
  - user_id: not-a-uuid
    role: aluno
    nome: X
`},
		{"без имени", `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
`},
		{"неверный email", `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
    nome: X
    email: nope
`},
		{"повтор в одной таблице", `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
    nome: X
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
    nome: Y
`},
		{"неизвестное поле", `
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: aluno
    nome: X
    idade: 30
`},
	}

	s := NewSeeder(newFakeRoleRepo(), nil, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ParseSeed(strings.NewReader(tt.yaml))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseSeed() = %v, ожидали ErrValidation", err)
			}
		})
	}
}

// TestSeeder_MultiRoleAllowed — один пользователь в разных таблицах
// допустим (порядок разрешения определяет итоговую роль).
func TestSeeder_MultiRoleAllowed(t *testing.T) {
	s := NewSeeder(newFakeRoleRepo(), nil, testLogger())
	_, err := s.ParseSeed(strings.NewReader(`
roles:
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: admin
    nome: X
  - user_id: 0b6f3c1e-7d7a-4a0e-9d55-1f2b3c4d5e6f
    role: professor
    nome: X
`))
	if err != nil {
		t.Errorf("ParseSeed() = %v", err)
	}
}

func TestSeeder_EmptyFile(t *testing.T) {
	s := NewSeeder(newFakeRoleRepo(), nil, testLogger())
	records, err := s.ParseSeed(strings.NewReader(""))
	if err != nil || len(records) != 0 {
		t.Errorf("ParseSeed(\"\") = %v, %v", records, err)
	}
}
