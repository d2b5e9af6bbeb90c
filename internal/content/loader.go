package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/sitecontent/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent/internal/log"
	"github.com/keithlinneman/sitecontent/internal/pathutil"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// ErrSignatureInvalid marks a bundle whose detached signature did not verify.
var ErrSignatureInvalid = errors.New("bundle signature invalid")

// S3API is the subset of the S3 client used by the Loader.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SSMAPI is the subset of the SSM client used by the Loader.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter containing the bundle SHA256 hash
	SSMParam string

	// S3 location for bundles: s3://{bucket}/{prefix}/{hash}.json.gz
	// with an optional detached signature at {hash}.json.gz.sig
	S3Bucket string
	S3Prefix string

	// Verifier checks the detached signature. nil skips verification.
	Verifier cryptoutil.Verifier

	// AWS config (uses default if nil)
	AWSConfig *aws.Config

	// Clients override the ones built from AWSConfig.
	S3Client  S3API
	SSMClient SSMAPI
}

// Loader fetches content bundles addressed by their SHA256.
type Loader struct {
	opts      LoaderOptions
	ssmClient SSMAPI
	s3Client  S3API
	logger    log.Logger
}

// NewLoader creates a new content Loader with the given options
func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	prefix, err := pathutil.CleanKeyPrefix(opts.S3Prefix)
	if err != nil {
		return nil, xerrors.Wrap(err, "S3Prefix")
	}
	opts.S3Prefix = prefix
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	l := &Loader{
		opts:      opts,
		ssmClient: opts.SSMClient,
		s3Client:  opts.S3Client,
		logger:    opts.Logger,
	}
	if l.ssmClient != nil && l.s3Client != nil {
		return l, nil
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	if l.ssmClient == nil {
		l.ssmClient = ssm.NewFromConfig(awsCfg)
	}
	if l.s3Client == nil {
		l.s3Client = s3.NewFromConfig(awsCfg)
	}
	return l, nil
}

// FetchCurrentBundleHash gets the current bundle hash from SSM
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}

	hash := strings.ToLower(strings.TrimSpace(*out.Parameter.Value))
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", l.opts.SSMParam)
	}
	return hash, nil
}

func (l *Loader) s3Key(hash string) string {
	if l.opts.S3Prefix != "" {
		return fmt.Sprintf("%s/%s.json.gz", l.opts.S3Prefix, hash)
	}
	return hash + ".json.gz"
}

func (l *Loader) getObject(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	out, err := l.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	data, hash, err := readWithHash(out.Body, limit)
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "read S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	return data, hash, nil
}

// Load fetches the current release and returns a Snapshot
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash downloads the bundle stored under hash, checks its digest and
// signature, and indexes it.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading content bundle",
		"bucket", l.opts.S3Bucket,
		"key", key,
		"expected_hash", hash,
	)

	data, actualHash, err := l.getObject(ctx, key, maxBundleSize)
	if err != nil {
		return nil, err
	}
	if !cryptoutil.HashEqual(actualHash, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actualHash)
	}

	signed := false
	if l.opts.Verifier != nil {
		sig, _, err := l.getObject(ctx, key+".sig", maxSignatureSize)
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch bundle signature")
		}
		if err := l.opts.Verifier.VerifySignature(ctx, data, sig); err != nil {
			return nil, xerrors.Mark(xerrors.Wrap(err, "verify bundle signature"), ErrSignatureInvalid)
		}
		signed = true
	}

	b, err := DecodeBundleGzip(data)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(b, Meta{
		SHA256:     hash,
		Source:     SourceS3,
		Signed:     signed,
		VerifiedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "index bundle")
	}
	snap.LoadedAt = loadedAt

	l.logger.Info(ctx, "loaded content bundle",
		"hash", truncHash(hash),
		"version", snap.Meta.Version,
		"entries", snap.Index.Len(),
		"signed", signed,
	)
	return snap, nil
}

// LoadIntoManager fetches the current release and updates the content manager
func (l *Loader) LoadIntoManager(ctx context.Context, mgr *Manager, v ValidationOptions) error {
	snap, err := l.Load(ctx)
	if err != nil {
		return err
	}
	if err := ValidateSnapshot(snap, v); err != nil {
		return err
	}
	mgr.Set(*snap)
	return nil
}
