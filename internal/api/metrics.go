package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/wa-gateway/internal/session"
)

// registerGauges exposes server-side gauges (WebSocket clients, sessions
// per state, uptime) on reg. Collectors already registered by an earlier
// server on the same registry are left in place.
func (s *Server) registerGauges(reg prometheus.Registerer) {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "wagateway",
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(s.hub.ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "wagateway",
			Name:      "uptime_seconds",
			Help:      "Seconds since the API server was created.",
		}, func() float64 { return time.Since(s.startTime).Seconds() }),
		&sessionCollector{srv: s},
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				s.logger.Warn("registering metrics collector failed", "error", err)
			}
		}
	}
}

var sessionsDesc = prometheus.NewDesc(
	"wagateway_sessions",
	"Registered sessions by state.",
	[]string{"state"}, nil,
)

// sessionCollector counts registered sessions per state at scrape time.
type sessionCollector struct {
	srv *Server
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionsDesc
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[session.State]int{
		session.StateIdle:         0,
		session.StateDisconnected: 0,
		session.StateConnected:    0,
	}
	for _, snap := range c.srv.svc.Sessions() {
		counts[snap.State]++
	}
	for st, n := range counts {
		ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(n), string(st))
	}
}

// metricsHandler serves the Prometheus exposition format.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: promLogger{s},
	})
}

// promLogger adapts the server logger to promhttp.Logger.
type promLogger struct{ s *Server }

func (l promLogger) Println(v ...any) {
	l.s.logger.Warn("metrics exposition error", "detail", v)
}
