package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// Verifier checks a detached signature over message.
type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

// PublicKeyVerifier verifies against a fixed public key.
type PublicKeyVerifier struct {
	pub           crypto.PublicKey
	AllowPKCS1v15 bool
}

// ParsePublicKeyPEM reads a PKIX "PUBLIC KEY" PEM block.
func ParsePublicKeyPEM(data []byte) (*PublicKeyVerifier, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, xerrors.New("no PEM block found")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, xerrors.Newf("unexpected PEM block type %q", block.Type)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse public key")
	}
	switch pub.(type) {
	case *ecdsa.PublicKey, *rsa.PublicKey:
	default:
		return nil, xerrors.Newf("unsupported public key type: %T", pub)
	}
	return &PublicKeyVerifier{pub: pub}, nil
}

// LoadPublicKeyFile reads a PEM public key from disk.
func LoadPublicKeyFile(path string) (*PublicKeyVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read public key %s", path)
	}
	return ParsePublicKeyPEM(data)
}

func (v *PublicKeyVerifier) VerifySignature(_ context.Context, message, signature []byte) error {
	return verifyWithKey(v.pub, message, signature, v.AllowPKCS1v15)
}

// verifyWithKey checks a signature made over the SHA-2 digest of message.
// ECDSA keys on P-256 use SHA-256 and on P-384 use SHA-384. RSA keys use
// SHA-256 with PSS, plus PKCS#1 v1.5 when allowPKCS1v15 is set.
func verifyWithKey(pub crypto.PublicKey, message, signature []byte, allowPKCS1v15 bool) error {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		var digest []byte
		switch key.Curve {
		case elliptic.P256():
			d := sha256.Sum256(message)
			digest = d[:]
		case elliptic.P384():
			d := sha512.Sum384(message)
			digest = d[:]
		default:
			return xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
		}
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return xerrors.Newf("ECDSA %s signature does not match", key.Curve.Params().Name)
		}
		return nil
	case *rsa.PublicKey:
		digest := sha256.Sum256(message)
		pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
		if pssErr == nil {
			return nil
		}
		if !allowPKCS1v15 {
			return xerrors.Wrap(pssErr, "RSA-PSS signature does not match")
		}
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
			return xerrors.Wrap(err, "RSA signature does not match under PSS or PKCS1v15")
		}
		return nil
	default:
		return xerrors.Newf("unsupported public key type: %T", pub)
	}
}
