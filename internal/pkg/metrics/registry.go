package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var reg = prometheus.DefaultRegisterer

func Registerer() prometheus.Registerer { return reg }

// UseRegisterer swaps the registerer used by metric areas that have not been
// built yet. Call it before the first area accessor.
func UseRegisterer(r prometheus.Registerer) {
	if r != nil {
		reg = r
	}
}

// NewProcessRegistry returns a registry preloaded with the Go runtime and
// process collectors.
func NewProcessRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}
