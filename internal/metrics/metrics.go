package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OYH0/ChurrasControl/internal/core/domain"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "churrascontrol_commands_total",
		Help: "Ledger commands processed, by action and result.",
	}, []string{"action", "result"})

	ChangeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "churrascontrol_change_subscribers",
		Help: "Active change-notification subscribers.",
	})
)

// Result maps a command outcome to the counter's result label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "storage_error"
	}
}
