package constants

// Static route constants
const (
	HealthRoute        = "/healthz"
	StripeWebhookRoute = "/webhooks/stripe"
	PayJSNotifyRoute   = "/webhooks/payjs"
	MetricsRoute       = "/metrics"
)
