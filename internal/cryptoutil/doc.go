// Package cryptoutil verifies content bundle signatures and compares
// digests.
//
// Bundles may be signed by an asymmetric AWS KMS key ([KMSVerifier]) or,
// outside AWS, checked against a PEM public key ([PublicKeyVerifier]).
// Both verify locally once the public key is known.
package cryptoutil
