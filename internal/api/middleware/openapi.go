// openapi.go — валидация запросов JSON API по встроенному OpenAPI контракту.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/api/errors"
)

// RequestValidator проверяет параметры и тело запроса по контракту.
// Аутентификация здесь не проверяется: её выполняет BearerAuth.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewRequestValidator создаёт валидатор по разобранному контракту.
func NewRequestValidator(doc *openapi3.T, logger *slog.Logger) (*RequestValidator, error) {
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("построение маршрутов OpenAPI: %w", err)
	}
	return &RequestValidator{
		router: router,
		logger: logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware отклоняет запросы, не соответствующие контракту, ответом 400.
// Пути, которых нет в контракте, пропускаются дальше: 404/405 отдаёт роутер.
func (v *RequestValidator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, describeRequestError(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// describeRequestError формирует короткое сообщение без внутренностей схемы.
func describeRequestError(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Некорректный параметр %s", reqErr.Parameter.Name)
		case reqErr.RequestBody != nil:
			var schemaErr *openapi3.SchemaError
			if errors.As(reqErr.Err, &schemaErr) && len(schemaErr.JSONPointer()) > 0 {
				return fmt.Sprintf("Некорректное поле %s", schemaErr.JSONPointer()[0])
			}
			return "Некорректное тело запроса"
		}
	}
	return "Запрос не соответствует контракту API"
}
