package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent/internal/accessgate"
	"github.com/keithlinneman/sitecontent/internal/cfg"
	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/contenthttp"
	"github.com/keithlinneman/sitecontent/internal/health"
	"github.com/keithlinneman/sitecontent/internal/httpmw"
	"github.com/keithlinneman/sitecontent/internal/httpserver"
	"github.com/keithlinneman/sitecontent/internal/locale"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/metrics"
	"github.com/keithlinneman/sitecontent/internal/opshttp"
	"github.com/keithlinneman/sitecontent/internal/otelx"
	"github.com/keithlinneman/sitecontent/internal/prof"
	"github.com/keithlinneman/sitecontent/internal/ratelimit"
	"github.com/keithlinneman/sitecontent/internal/site"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
	v "github.com/keithlinneman/sitecontent/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix SITECONTENT_ and validate
	cfg.FillFromEnv(flag.CommandLine, "SITECONTENT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	// empty means the logger default (error)
	var stackLvl slog.Level
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
			os.Exit(1)
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Component:         "server",
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"path_prefix", conf.PathPrefix,
		"store", conf.Store,
		"default_locale", conf.DefaultLocale,
		"locales", conf.Locales,
		"slot_table", conf.SlotTable,
		"redis_enabled", conf.RedisAddr != "",
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_content_updates", conf.EnableContentUpdates,
		"content_s3_bucket", conf.ContentS3Bucket,
		"content_s3_prefix", conf.ContentS3Prefix,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfo("server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// AWS is only needed for the bundle store, KMS and the SSM token secret
	awsConfig := sync.OnceValues(func() (aws.Config, error) {
		c, err := config.LoadDefaultConfig(ctx)
		return c, xerrors.Wrap(err, "load AWS config")
	})

	// slot table
	table := site.DefaultSlotTable()
	if conf.SlotTable != "" {
		table, err = site.LoadSlotTableFile(conf.SlotTable)
		if err != nil {
			L.Error(ctx, err, "failed to load slot table", "path", conf.SlotTable)
			os.Exit(1)
		}
	}
	L.Info(ctx, "slot table loaded", "version", table.Version(), "slots", table.Len())

	// every slot must resolve in the default locale before content is served
	validation := content.DefaultValidationOptions()
	validation.DefaultLocale = conf.DefaultLocale
	validation.Required = table.Required()

	be, err := newBackend(ctx, L, conf, m, validation, awsConfig)
	if err != nil {
		L.Error(ctx, err, "failed to set up content store", "store", conf.Store)
		os.Exit(1)
	}
	defer be.close()

	resolver, err := locale.NewResolver(locale.Options{
		Store:         be.store,
		DefaultLocale: conf.DefaultLocale,
		KnownTypes:    append(slices.Clone(table.ContentTypes()), contenthttp.PublicType),
		Logger:        L,
		Metrics:       m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create locale resolver")
		os.Exit(1)
	}
	catalog, err := locale.NewCatalog(conf.DefaultLocale, conf.LocaleList())
	if err != nil {
		L.Error(ctx, err, "invalid locale configuration")
		os.Exit(1)
	}
	aggregator, err := site.NewAggregator(site.Options{
		Resolver: resolver,
		Table:    table,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site aggregator")
		os.Exit(1)
	}

	// access gate
	secret, err := tokenSecret(ctx, conf, awsConfig)
	if err != nil {
		L.Error(ctx, err, "failed to load bearer token secret")
		os.Exit(1)
	}
	verifier, err := accessgate.NewVerifier(secret, accessgate.VerifierOptions{Leeway: conf.JWTLeeway})
	if err != nil {
		L.Error(ctx, err, "failed to create token verifier")
		os.Exit(1)
	}
	gate := accessgate.New(verifier, accessgate.WithMetrics(m), accessgate.WithRealm(v.AppName))

	var snapshots contenthttp.SnapshotProvider
	if be.manager != nil {
		snapshots = be.manager
	}
	api, err := contenthttp.NewAPI(contenthttp.Options{
		Resolver:   resolver,
		Aggregator: aggregator,
		Catalog:    catalog,
		Gate:       gate.Middleware,
		Snapshots:  snapshots,
		Logger:     L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create content api")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var shutdownGate health.ShutdownGate

	// readiness: not draining, and every store layer answers
	readiness := health.All(append([]health.Probe{shutdownGate.Probe()}, be.readiness...)...)

	var rateLimitMW httpmw.Middleware
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			// increment prometheus counter on each denied request
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// only log the first time an ip is denied each time it is cleaned from the bucket
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	// start public http server
	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:         L,
		Port:           conf.HTTPPort,
		PathPrefix:     conf.PathPrefix,
		RequestTimeout: conf.RequestTimeout,
		UseRecoverMW:   true,
		OnPanic:        m.IncHttpPanic,
		MetricsMW:      m.Middleware,
		RateLimitMW:    rateLimitMW,
		ClientIPOpts:   httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:         health.Fixed(true, ""),
		Readiness:      readiness,
		ContentInfo:    be.info,
		APIRoutes:      func(r chi.Router) { api.RegisterRoutes(r) },
	})
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks and pprof
	// we reject connections from public ips and requests with x-forwarded set in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic there
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Debug(ctx, "systemd readiness notification skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer drains us
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining for 30s")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "public http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()
	be.close()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	_, _ = conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
