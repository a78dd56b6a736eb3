// Package metrics exposes Prometheus collectors for the store, session,
// rate limit, cache and config components. Each collector set implements the
// observer interface of the package it measures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supportcore"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Set bundles every collector group registered on one registry.
type Set struct {
	Redis     *RedisMetrics
	Session   *SessionMetrics
	RateLimit *RateLimitMetrics
	Cache     *CacheMetrics
	Config    *ConfigMetrics
}

// NewSet creates and registers all collector groups on reg.
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		Redis:     NewRedisMetrics(reg),
		Session:   NewSessionMetrics(reg),
		RateLimit: NewRateLimitMetrics(reg),
		Cache:     NewCacheMetrics(reg),
		Config:    NewConfigMetrics(reg),
	}
}
