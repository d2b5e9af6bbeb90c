package main

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/sitecontent/internal/cfg"
	"github.com/keithlinneman/sitecontent/internal/content"
	"github.com/keithlinneman/sitecontent/internal/content/pgstore"
	"github.com/keithlinneman/sitecontent/internal/content/rediscache"
	"github.com/keithlinneman/sitecontent/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent/internal/health"
	"github.com/keithlinneman/sitecontent/internal/httpmw"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/metrics"
	"github.com/keithlinneman/sitecontent/internal/seed"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// backend is the content store the server reads from plus everything
// the rest of main needs to know about it.
type backend struct {
	store     content.Store
	manager   *content.Manager // nil unless content is snapshot backed
	info      httpmw.ContentInfo
	readiness []health.Probe
	cache     *rediscache.Store
	closers   []func()
	closeOnce sync.Once
}

func (b *backend) close() {
	b.closeOnce.Do(func() {
		for i := len(b.closers) - 1; i >= 0; i-- {
			b.closers[i]()
		}
	})
}

// purgeCache drops cached lookups after the underlying content changed.
func (b *backend) purgeCache(ctx context.Context, L log.Logger) {
	if b.cache == nil {
		return
	}
	n, err := b.cache.Purge(ctx)
	if err != nil {
		L.Error(ctx, err, "content cache purge failed")
		return
	}
	L.Info(ctx, "content cache purged", "keys", n)
}

// newBackend builds the configured content store. awsConfig is only
// called for backends that talk to AWS.
func newBackend(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics, validation content.ValidationOptions, awsConfig func() (aws.Config, error)) (*backend, error) {
	b := &backend{}
	switch conf.Store {
	case cfg.StoreSeed:
		snap, err := seed.Snapshot()
		if err != nil {
			return nil, xerrors.Wrap(err, "load seed content")
		}
		if err := content.ValidateSnapshot(snap, validation); err != nil {
			return nil, xerrors.Wrap(err, "validate seed content")
		}
		mgr := content.NewManager()
		mgr.Set(*snap)
		L.Info(ctx, "loaded seed content", "version", snap.Meta.Version, "entries", snap.Index.Len())
		b.useManager(mgr)

	case cfg.StoreBundle:
		awsCfg, err := awsConfig()
		if err != nil {
			return nil, err
		}
		if err := b.setupBundle(ctx, L, conf, m, validation, awsCfg); err != nil {
			return nil, err
		}

	case cfg.StorePostgres:
		if err := b.setupPostgres(ctx, L, conf); err != nil {
			return nil, err
		}

	default:
		return nil, xerrors.Newf("unknown store %q", conf.Store)
	}

	m.SetContentSource(conf.Store)
	if b.manager != nil {
		if snap, ok := b.manager.Current(); ok {
			m.SetContentBundle(snap.Meta.SHA256, snap.Meta.Version, snap.LoadedAt)
		}
	}

	if conf.RedisAddr != "" {
		if err := b.setupCache(ctx, L, conf, m); err != nil {
			b.close()
			return nil, err
		}
	}
	return b, nil
}

func (b *backend) useManager(mgr *content.Manager) {
	b.manager = mgr
	b.store = mgr
	b.info = mgr
	b.readiness = append(b.readiness, health.Named("content", mgr))
}

func (b *backend) setupBundle(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics, validation content.ValidationOptions, awsCfg aws.Config) error {
	verifier, err := bundleVerifier(conf, awsCfg)
	if err != nil {
		return err
	}
	loader, err := content.NewLoader(ctx, content.LoaderOptions{
		Logger:    L,
		SSMParam:  conf.ContentSSMParam,
		S3Bucket:  conf.ContentS3Bucket,
		S3Prefix:  conf.ContentS3Prefix,
		Verifier:  verifier,
		S3Client:  s3.NewFromConfig(awsCfg),
		SSMClient: ssm.NewFromConfig(awsCfg),
	})
	if err != nil {
		return xerrors.Wrap(err, "create content loader")
	}

	mgr := content.NewManager()
	b.useManager(mgr)

	// A failed first load leaves the server unready rather than dead so the
	// watcher can pick up a fixed release without a restart.
	if err := loader.LoadIntoManager(ctx, mgr, validation); err != nil {
		L.Error(ctx, err, "initial content bundle load failed, serving unready until the watcher succeeds")
	} else {
		L.Info(ctx, "loaded content bundle from S3",
			"content_version", mgr.ContentVersion(),
			"content_hash", mgr.ContentHash(),
		)
	}

	if !conf.EnableContentUpdates {
		return nil
	}
	watcher := content.NewWatcher(&content.WatcherOptions{
		Logger:       L,
		Loader:       loader,
		Manager:      mgr,
		PollInterval: conf.ContentPollInterval,
		Validation:   &validation,
		Metrics:      m,
		OnSwap: func(hash, version string) {
			m.SetContentBundle(hash, version, time.Now())
			b.purgeCache(ctx, L)
		},
	})
	go func() { _ = watcher.Run(ctx) }()
	return nil
}

func bundleVerifier(conf cfg.App, awsCfg aws.Config) (cryptoutil.Verifier, error) {
	switch {
	case conf.ContentSigningKeyARN != "":
		return cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.ContentSigningKeyARN), nil
	case conf.ContentSigningKey != "":
		v, err := cryptoutil.LoadPublicKeyFile(conf.ContentSigningKey)
		if err != nil {
			return nil, xerrors.Wrap(err, "load content signing key")
		}
		return v, nil
	}
	return nil, nil
}

func (b *backend) setupPostgres(ctx context.Context, L log.Logger, conf cfg.App) error {
	pg, err := pgstore.Open(ctx, pgstore.Options{DatabaseURL: conf.DatabaseURL, MaxConns: int32(conf.DatabaseMaxConns)})
	if err != nil {
		return xerrors.Wrap(err, "open postgres content store")
	}
	b.closers = append(b.closers, pg.Close)

	if conf.RunMigrations {
		if err := pg.Migrate(ctx); err != nil {
			b.close()
			return xerrors.Wrap(err, "migrate content store")
		}
	}

	n, err := pg.Count(ctx)
	if err != nil {
		b.close()
		return xerrors.Wrap(err, "count content entries")
	}
	if n == 0 {
		bundle, err := seed.Bundle()
		if err != nil {
			b.close()
			return xerrors.Wrap(err, "load seed content")
		}
		if err := pg.Import(ctx, bundle.Entries); err != nil {
			b.close()
			return xerrors.Wrap(err, "import seed content")
		}
		L.Info(ctx, "empty content store seeded", "entries", len(bundle.Entries))
	}

	b.store = pg
	b.readiness = append(b.readiness, health.Named("postgres", health.Ping(pg, 2*time.Second)))
	return nil
}

func (b *backend) setupCache(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) error {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})
	b.closers = append(b.closers, func() { _ = client.Close() })

	cache, err := rediscache.New(rediscache.Options{
		Client:  client,
		Next:    b.store,
		TTL:     conf.CacheTTL,
		Logger:  L,
		Metrics: m,
	})
	if err != nil {
		return xerrors.Wrap(err, "create content cache")
	}
	// entries written before this process started may be stale
	b.cache = cache
	b.purgeCache(ctx, L)

	b.store = cache
	b.readiness = append(b.readiness, health.Named("redis", health.Ping(cache, time.Second)))
	return nil
}
