package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for integrity hashes.
// Version suffix enables future algorithm migration.
const (
	DomainVersion = "doctype/version/v1"
	DomainSchema  = "doctype/schema/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VersionHash computes the integrity hash of a version snapshot.
// The document id and version number are bound into the hash so a
// snapshot copied onto another row does not verify.
func VersionHash(documentID string, number int64, snapshot Object) (string, error) {
	obj := Object{
		"document_id":    String(documentID),
		"version_number": Int(number),
		"data_snapshot":  snapshot,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("VersionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainVersion, canonical), nil
}

// MustVersionHash is like VersionHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustVersionHash(documentID string, number int64, snapshot Object) string {
	h, err := VersionHash(documentID, number, snapshot)
	if err != nil {
		panic(err)
	}
	return h
}

// DefinitionHash fingerprints a schema definition so redefinitions that
// change nothing can be told apart from real edits.
func DefinitionHash(definition Object) (string, error) {
	canonical, err := MarshalCanonical(definition)
	if err != nil {
		return "", fmt.Errorf("DefinitionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}
