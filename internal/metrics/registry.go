package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a private registry with deckhand's collectors
// registered, so one run's numbers never mix with another's.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// HandlerFor serves reg on the responder's /metrics route.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for the node_exporter textfile collector. The write is atomic.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, reg)
}
