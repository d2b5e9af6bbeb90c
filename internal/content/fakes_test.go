package content

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/sitecontent/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent/internal/log"
)

const (
	testSSMParam = "/sitecontent/bundle-hash"
	testBucket   = "content-bucket"
	testPrefix   = "bundles"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey: " + aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeSSM struct {
	mu    sync.Mutex
	value string
	err   error
}

func (f *fakeSSM) set(value string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.err = value, err
}

func (f *fakeSSM) GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

// publish stores a bundle in fake S3 and returns its hash.
func publish(t *testing.T, s *fakeS3, version string, entries ...Entry) (string, []byte) {
	t.Helper()
	data, err := EncodeBundleGzip(&Bundle{Version: version, Entries: entries})
	if err != nil {
		t.Fatal(err)
	}
	hash := cryptoutil.SHA256Hex(data)
	s.put(testPrefix+"/"+hash+".json.gz", data)
	return hash, data
}

func newTestLoader(t *testing.T, s3c *fakeS3, ssmc *fakeSSM, v cryptoutil.Verifier) *Loader {
	t.Helper()
	l, err := NewLoader(t.Context(), LoaderOptions{
		Logger:    log.Nop(),
		SSMParam:  testSSMParam,
		S3Bucket:  testBucket,
		S3Prefix:  testPrefix,
		Verifier:  v,
		S3Client:  s3c,
		SSMClient: ssmc,
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func contextWithCancel(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	return ctx, cancel
}
