package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent/internal/health"
	"github.com/keithlinneman/sitecontent/internal/httpmw"
	"github.com/keithlinneman/sitecontent/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// PathPrefix is the external mount point stripped before routing.
	PathPrefix string
	// RequestTimeout bounds content lookups; zero means no deadline.
	RequestTimeout time.Duration

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    httpmw.Middleware
	RateLimitMW  httpmw.Middleware
	ClientIPOpts httpmw.ClientIPOptions

	Health      health.Probe
	Readiness   health.Probe
	ContentInfo httpmw.ContentInfo // For X-Content-Bundle-Version and X-Content-Hash headers

	APIRoutes func(chi.Router)
}
