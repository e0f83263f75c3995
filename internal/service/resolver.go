// resolver.go — разрешение роли, имени и профиля пользователя портала.
// Роль определяется наличием строки в таблицах ролей в порядке
// rbac.Precedence. Ошибки поиска не выходят наружу: таблица с ошибкой
// считается промахом, имя заменяется значением по умолчанию.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/rbac"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
)

const tracerName = "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/service"

// Resolver — Role Resolver портала.
type Resolver struct {
	repo          repository.RoleRepository
	avatars       AvatarSigner
	lookupTimeout time.Duration
	tracer        trace.Tracer
	logger        *slog.Logger
}

// NewResolver создаёт Resolver. avatars может быть nil — тогда FotoURL
// профиля возвращается как есть. lookupTimeout ограничивает каждый запрос к БД.
func NewResolver(repo repository.RoleRepository, avatars AvatarSigner, lookupTimeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:          repo,
		avatars:       avatars,
		lookupTimeout: lookupTimeout,
		tracer:        otel.Tracer(tracerName),
		logger:        logger.With(slog.String("component", "role_resolver")),
	}
}

// ResolveRole выполняет до трёх последовательных проверок (professor,
// aluno, admin) и возвращает первую найденную роль. Unknown, если
// пользователь не найден ни в одной таблице или все проверки упали.
func (r *Resolver) ResolveRole(ctx context.Context, userID string) model.Role {
	ctx, span := r.tracer.Start(ctx, "ResolveRole",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	role := r.resolveRole(ctx, userID)
	span.SetAttributes(attribute.String("role", string(role.Kind())))
	roleResolutionsTotal.WithLabelValues(string(role.Kind())).Inc()
	return role
}

func (r *Resolver) resolveRole(ctx context.Context, userID string) model.Role {
	if userID == "" {
		return model.Unknown{}
	}

	for _, src := range rbac.Precedence {
		found, err := r.exists(ctx, src.Kind, userID)
		if err != nil {
			roleLookupErrorsTotal.WithLabelValues(src.Table).Inc()
			r.logger.Warn("Ошибка поиска роли, таблица пропущена",
				slog.String("table", src.Table),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if found {
			return model.RoleFromKind(src.Kind)
		}
	}
	return model.Unknown{}
}

// IsAdmin проверяет наличие строки в admin_users. Ошибка возвращается
// вызывающему: AdminGuard трактует её как отказ.
func (r *Resolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "IsAdmin",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return false, nil
	}

	ok, err := r.exists(ctx, model.KindAdmin, userID)
	if err != nil {
		roleLookupErrorsTotal.WithLabelValues(rbac.TableAdmin).Inc()
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return ok, nil
}

// ResolveProfile возвращает расширенный профиль преподавателя.
// Ключ объекта в FotoURL заменяется временной ссылкой.
func (r *Resolver) ResolveProfile(ctx context.Context, userID string) (*model.ExtendedProfile, error) {
	ctx, span := r.tracer.Start(ctx, "ResolveProfile",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	lctx, cancel := r.lookupCtx(ctx)
	defer cancel()

	profile, err := r.repo.GetProfessorProfile(lctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if r.avatars != nil && isObjectKey(profile.FotoURL) {
		signed, err := r.avatars.AvatarURL(ctx, profile.FotoURL)
		if err != nil {
			r.logger.Warn("Не удалось подписать ссылку на фото",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			profile.FotoURL = ""
		} else {
			profile.FotoURL = signed
		}
	}
	return profile, nil
}

// ResolveDisplayName возвращает имя из таблицы роли. Никогда не падает:
// при ошибке или пустом имени используется имя по умолчанию для роли.
func (r *Resolver) ResolveDisplayName(ctx context.Context, userID string, role model.Role) string {
	kind := model.KindOf(role)
	fallback := rbac.DefaultName(kind)

	if kind == model.KindUnknown || userID == "" {
		return fallback
	}
	if p, ok := role.(model.Professor); ok && p.Profile != nil && p.Profile.Nome != "" {
		return p.Profile.Nome
	}

	lctx, cancel := r.lookupCtx(ctx)
	defer cancel()

	nome, err := r.repo.DisplayName(lctx, kind, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("Ошибка получения имени, используется имя по умолчанию",
				slog.String("role", string(kind)),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return fallback
	}
	if nome == "" {
		return fallback
	}
	return nome
}

// Resolve строит AuthUser с нуля: роль, профиль (только преподаватель), имя.
// Никогда не возвращает ошибку.
func (r *Resolver) Resolve(ctx context.Context, userID, email string) *model.AuthUser {
	ctx, span := r.tracer.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	role := r.ResolveRole(ctx, userID)

	if _, ok := role.(model.Professor); ok {
		profile, err := r.ResolveProfile(ctx, userID)
		switch {
		case err == nil:
			role = model.Professor{Profile: profile}
		case errors.Is(err, ErrNotFound):
			// строка исчезла между проверкой роли и чтением профиля
		default:
			r.logger.Warn("Ошибка получения профиля преподавателя",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &model.AuthUser{
		ID:    userID,
		Email: email,
		Nome:  r.ResolveDisplayName(ctx, userID, role),
		Tipo:  role,
	}
}

func (r *Resolver) exists(ctx context.Context, kind model.RoleKind, userID string) (bool, error) {
	lctx, cancel := r.lookupCtx(ctx)
	defer cancel()
	return r.repo.Exists(lctx, kind, userID)
}

func (r *Resolver) lookupCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.lookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.lookupTimeout)
}
