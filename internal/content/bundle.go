package content

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

const (
	// maxBundleSize is the maximum size of a compressed bundle from s3
	maxBundleSize int64 = 20 * 1024 * 1024 // 20MB

	// maxDecodedSize caps the decompressed JSON document
	maxDecodedSize int64 = 100 * 1024 * 1024 // 100MB

	// maxSignatureSize caps a detached bundle signature
	maxSignatureSize int64 = 16 * 1024
)

// Bundle is the wire form of a content release: a flat list of entries
// plus release metadata.
type Bundle struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Entries   []Entry   `json:"entries"`
}

// readWithHash reads all bytes from r up to maxSize, computing SHA256
// as it reads. Returns the data, hex-encoded hash, and any error.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	lr := io.LimitReader(r, maxSize+1)
	tr := io.TeeReader(lr, h)

	data, err := io.ReadAll(tr)
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("content exceeds max size (%d bytes, limit %d)", len(data), maxSize)
	}

	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeBundleGzip decodes a gzip compressed JSON bundle.
func DecodeBundleGzip(data []byte) (*Bundle, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip stream")
	}
	defer zr.Close()

	raw, _, err := readWithHash(zr, maxDecodedSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "decompress bundle")
	}
	return DecodeBundle(raw)
}

// DecodeBundle decodes an uncompressed JSON bundle. Unknown top-level
// fields are rejected so a malformed producer fails loudly.
func DecodeBundle(raw []byte) (*Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, xerrors.Wrap(err, "decode bundle json")
	}
	return &b, nil
}

// EncodeBundleGzip is the inverse of DecodeBundleGzip, used by tooling and
// tests that publish bundles.
func EncodeBundleGzip(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(b); err != nil {
		return nil, xerrors.Wrap(err, "encode bundle json")
	}
	if err := zw.Close(); err != nil {
		return nil, xerrors.Wrap(err, "close gzip stream")
	}
	return buf.Bytes(), nil
}

// Index builds the frozen lookup index for the bundle's entries.
func (b *Bundle) Index() (*MemoryStore, error) {
	return NewMemoryStoreFrom(b.Entries)
}
