package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/log"
)

// Content store backends.
const (
	StoreSeed     = "seed"
	StoreBundle   = "bundle"
	StorePostgres = "postgres"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort       int
	AdminPort      int
	PathPrefix     string
	TrustedHops    int
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	DefaultLocale string
	Locales       string
	SlotTable     string

	JWTSecret         string
	JWTSecretSSMParam string
	JWTLeeway         time.Duration

	Store            string
	DatabaseURL      string
	DatabaseMaxConns int
	RunMigrations    bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheTTL         time.Duration

	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	ContentSigningKey    string
	EnableContentUpdates bool
	ContentPollInterval  time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.PathPrefix, "path-prefix", "/strapi", "mount prefix stripped from incoming paths")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "number of trusted proxies in front of the server (X-Forwarded-For)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-IP sustained requests per second (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-IP burst size")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", 10*time.Second, "deadline for content lookups per request")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.DefaultLocale, "default-locale", "en", "locale every lookup falls back to")
	fs.StringVar(&c.Locales, "locales", "en,hi", "comma separated published locales")
	fs.StringVar(&c.SlotTable, "slot-table", "", "slot table YAML file (embedded default when empty)")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 secret for bearer tokens")
	fs.StringVar(&c.JWTSecretSSMParam, "jwt-secret-ssm-param", "", "ssm SecureString parameter holding the bearer token secret")
	fs.DurationVar(&c.JWTLeeway, "jwt-leeway", 30*time.Second, "clock skew allowed on exp/nbf")

	fs.StringVar(&c.Store, "store", StoreSeed, "content store: seed|bundle|postgres")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "postgres connection string (store=postgres)")
	fs.IntVar(&c.DatabaseMaxConns, "database-max-conns", 10, "postgres pool size")
	fs.BoolVar(&c.RunMigrations, "run-migrations", true, "apply schema migrations at startup (store=postgres)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the read-through cache (empty disables)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", 5*time.Minute, "redis cache entry lifetime")

	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "/app/sitecontent/server/content/stable/release/id", "ssm parameter name to get content bundle hash from")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket name to get content bundle from")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "apps/sitecontent/server/content/bundles", "s3 prefix (key) to get content bundle from")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key ARN for content bundle signature verification")
	fs.StringVar(&c.ContentSigningKey, "content-signing-key", "", "PEM public key file for content bundle signature verification (alternative to KMS)")
	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", true, "Poll SSM for new content bundles (store=bundle)")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 60*time.Second, "content bundle poll interval")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, redact(f.Name, f.Value.String()), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, redact(f.Name, envVal), err)
			}
		}
	})
}

func redact(name, v string) string {
	switch name {
	case "jwt-secret", "redis-password", "database-url":
		return "[REDACTED]"
	}
	return v
}

// LocaleList returns the configured locales, trimmed, empties dropped.
func (c App) LocaleList() []string {
	var out []string
	for _, s := range strings.Split(c.Locales, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Path prefix: "/x" style, never the bare root
	if c.PathPrefix != "" {
		if !strings.HasPrefix(c.PathPrefix, "/") || strings.HasSuffix(c.PathPrefix, "/") {
			errs = append(errs, fmt.Errorf("PATH_PREFIX must start with / and not end with / (got %q)", c.PathPrefix))
		}
	}

	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 with RATE_LIMIT_BURST >= 1"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive (got %s)", c.RequestTimeout))
	}

	errs = append(errs, validateLocales(c)...)

	// Bearer token secret: exactly one source
	if (c.JWTSecret == "") == (c.JWTSecretSSMParam == "") {
		errs = append(errs, fmt.Errorf("exactly one of JWT_SECRET or JWT_SECRET_SSM_PARAM is required"))
	}
	if c.JWTLeeway < 0 {
		errs = append(errs, fmt.Errorf("JWT_LEEWAY must be >= 0 (got %s)", c.JWTLeeway))
	}

	errs = append(errs, validateStore(c)...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateLocales(c App) []error {
	var errs []error
	def, err := content.CanonicalLocale(c.DefaultLocale)
	if err != nil {
		return append(errs, fmt.Errorf("invalid DEFAULT_LOCALE %q", c.DefaultLocale))
	}
	listed := false
	for _, l := range c.LocaleList() {
		canon, err := content.CanonicalLocale(l)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid locale %q in LOCALES", l))
			continue
		}
		if canon == def {
			listed = true
		}
	}
	if !listed {
		errs = append(errs, fmt.Errorf("DEFAULT_LOCALE %q must be listed in LOCALES", c.DefaultLocale))
	}
	return errs
}

func validateStore(c App) []error {
	var errs []error
	switch c.Store {
	case StoreSeed:
	case StoreBundle:
		if c.ContentSSMParam == "" {
			errs = append(errs, fmt.Errorf("CONTENT_SSM_PARAM is required when STORE=bundle"))
		}
		if c.ContentS3Bucket == "" {
			errs = append(errs, fmt.Errorf("CONTENT_S3_BUCKET is required when STORE=bundle"))
		}
		if c.ContentS3Prefix == "" {
			errs = append(errs, fmt.Errorf("CONTENT_S3_PREFIX is required when STORE=bundle"))
		}
		if c.ContentSigningKeyARN != "" && c.ContentSigningKey != "" {
			errs = append(errs, fmt.Errorf("CONTENT_SIGNING_KEY_ARN and CONTENT_SIGNING_KEY are mutually exclusive"))
		}
		if c.EnableContentUpdates && c.ContentPollInterval < time.Second {
			errs = append(errs, fmt.Errorf("CONTENT_POLL_INTERVAL must be >= 1s (got %s)", c.ContentPollInterval))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORE=postgres"))
		}
		if c.DatabaseMaxConns < 1 {
			errs = append(errs, fmt.Errorf("DATABASE_MAX_CONNS must be >= 1 (got %d)", c.DatabaseMaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE %q (must be seed|bundle|postgres)", c.Store))
	}

	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.CacheTTL <= 0 {
			errs = append(errs, fmt.Errorf("CACHE_TTL must be positive (got %s)", c.CacheTTL))
		}
	}
	return errs
}
