package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentTransport wraps next so every outbound request is counted in
// plauder_http_requests_total and timed in
// plauder_http_request_duration_seconds under the given provider label.
// A nil next uses http.DefaultTransport.
func InstrumentTransport(provider string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	labels := prometheus.Labels{"provider": provider}

	counter := HTTPRequestsTotal.MustCurryWith(labels)
	duration := HTTPRequestDuration.MustCurryWith(labels)

	return promhttp.InstrumentRoundTripperCounter(counter,
		promhttp.InstrumentRoundTripperDuration(duration, next),
	)
}
