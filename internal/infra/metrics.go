package infra

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	imetrics "github.com/pancudaniel7/blockwatch-service/internal/pkg/metrics"
)

var promRegistry *prometheus.Registry

// InitMetrics creates the process registry on first use, builds every metric
// area against it and mounts /metrics on app.
func InitMetrics(app *fiber.App) {
	if app == nil {
		return
	}
	if promRegistry == nil {
		promRegistry = imetrics.NewProcessRegistry()
		bi := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "service_build_info",
			Help:        "build info",
			ConstLabels: prometheus.Labels{"service": viper.GetString("service.name"), "instance": viper.GetString("service.instance")},
		}, []string{"version", "rev"})
		promRegistry.MustRegister(bi)
		bi.WithLabelValues(viper.GetString("service.version"), viper.GetString("service.revision")).Set(1)

		imetrics.UseRegisterer(promRegistry)
		_ = imetrics.App()
		_ = imetrics.Process()
		_ = imetrics.Watcher()
		_ = imetrics.Reader()
		_ = imetrics.Handler()
		_ = imetrics.Kafka()
	}
	h := promhttp.InstrumentMetricHandler(promRegistry, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	app.Get("/metrics", adaptor.HTTPHandler(h))
}
