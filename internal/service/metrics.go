package service

import "github.com/prometheus/client_golang/prometheus"

var (
	resetTokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "password_reset_tokens_issued_total",
		Help: "Password reset tokens created",
	})
	resetTokenChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "password_reset_token_validations_total",
		Help: "Password reset token validations by result",
	}, []string{"status"})
	passwordChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "password_changes_total",
		Help: "Passwords changed, through reset or by a signed-in user",
	})
	accountStatusChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "account_status_changes_total",
		Help: "Enable/disable operations",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(resetTokensIssued, resetTokenChecks, passwordChanges, accountStatusChanges)
}
