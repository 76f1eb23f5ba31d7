package metrics

import "smartinlet/internal/apperr"

// Observe учитывает результат операции; err==nil — "ok".
func Observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	Operations.WithLabelValues(op, outcome).Inc()
}
