package model

// RoleKind — машинное имя роли.
type RoleKind string

const (
	KindProfessor RoleKind = "professor"
	KindAluno     RoleKind = "aluno"
	KindAdmin     RoleKind = "admin"
	KindUnknown   RoleKind = "unknown"
)

// Role — закрытое множество ролей портала.
// Реализуется только типами этого пакета: Professor, Aluno, Admin, Unknown.
// Расширенный профиль есть только у Professor.
type Role interface {
	Kind() RoleKind
	sealedRole()
}

// Professor — преподаватель. Profile может быть nil, пока профиль не загружен
// или если его не удалось прочитать.
type Professor struct {
	Profile *ExtendedProfile
}

// Aluno — ученик.
type Aluno struct{}

// Admin — администратор back-office.
type Admin struct{}

// Unknown — пользователь без строки ни в одной таблице ролей.
type Unknown struct{}

func (Professor) Kind() RoleKind { return KindProfessor }
func (Aluno) Kind() RoleKind     { return KindAluno }
func (Admin) Kind() RoleKind     { return KindAdmin }
func (Unknown) Kind() RoleKind   { return KindUnknown }

func (Professor) sealedRole() {}
func (Aluno) sealedRole()     {}
func (Admin) sealedRole()     {}
func (Unknown) sealedRole()   {}

// RoleFromKind строит роль без профиля по машинному имени.
// Неизвестные значения дают Unknown.
func RoleFromKind(kind RoleKind) Role {
	switch kind {
	case KindProfessor:
		return Professor{}
	case KindAluno:
		return Aluno{}
	case KindAdmin:
		return Admin{}
	default:
		return Unknown{}
	}
}

// KindOf возвращает вид роли; nil трактуется как Unknown.
func KindOf(r Role) RoleKind {
	if r == nil {
		return KindUnknown
	}
	return r.Kind()
}
