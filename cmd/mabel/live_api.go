package main

import (
	"maps"
	"net/http"
	"sync/atomic"
)

// apiSettings are the config fields an API handler is built from.
type apiSettings struct {
	MaxUploadBytes int64
	CanvasHeight   float64
	LintRules      map[string]string
}

func apiSettingsOf(cfg Config) apiSettings {
	return apiSettings{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CanvasHeight:   cfg.CanvasHeight,
		LintRules:      maps.Clone(cfg.LintRules),
	}
}

type builtAPI struct {
	handler    http.Handler
	settings   apiSettings
	generation int
}

// liveAPI serves the most recently built API handler. A settings reload
// replaces it while in-flight requests finish on the previous one.
type liveAPI struct {
	cur atomic.Pointer[builtAPI]
}

func newLiveAPI(h http.Handler, s apiSettings) *liveAPI {
	l := &liveAPI{}
	l.cur.Store(&builtAPI{handler: h, settings: s, generation: 1})
	return l
}

func (l *liveAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.cur.Load().handler.ServeHTTP(w, r)
}

// Replace installs h, built from s, and returns its generation.
func (l *liveAPI) Replace(h http.Handler, s apiSettings) int {
	for {
		old := l.cur.Load()
		next := &builtAPI{handler: h, settings: s, generation: old.generation + 1}
		if l.cur.CompareAndSwap(old, next) {
			return next.generation
		}
	}
}

// Settings returns the settings of the handler currently serving.
func (l *liveAPI) Settings() apiSettings {
	return l.cur.Load().settings
}

func (l *liveAPI) Generation() int {
	return l.cur.Load().generation
}
