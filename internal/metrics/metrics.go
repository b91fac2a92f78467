// Package metrics defines the Prometheus instruments for the admission core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts accepted scan transitions by kind (ENTRY/EXIT).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_scans_total",
		Help: "Accepted scan transitions by kind.",
	}, []string{"kind"})

	// VerifyFailuresTotal counts verification failures by reason. The
	// tampered series is the forged-attempt alert signal.
	VerifyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_verify_failures_total",
		Help: "Token verification failures by machine-readable reason.",
	}, []string{"reason"})

	// QRCacheHitsTotal counts render-cache hits.
	QRCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_qr_cache_hits_total",
		Help: "QR image cache hits.",
	})

	// QRCacheMissesTotal counts render-cache misses, including cache-store
	// failures that fell back to a direct render.
	QRCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_qr_cache_misses_total",
		Help: "QR image cache misses and fallbacks.",
	})

	// QRRendersTotal counts actual QR encodes.
	QRRendersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_qr_renders_total",
		Help: "QR images rendered.",
	})
)
