package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// roleResolutionsTotal — итоги разрешения роли по видам.
	roleResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fp_role_resolutions_total",
			Help: "Количество разрешений роли пользователя по итоговой роли",
		},
		[]string{"role"},
	)

	// roleLookupErrorsTotal — ошибки поиска строки в таблицах ролей.
	roleLookupErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fp_role_lookup_errors_total",
			Help: "Количество ошибок поиска в таблицах ролей",
		},
		[]string{"table"},
	)
)
