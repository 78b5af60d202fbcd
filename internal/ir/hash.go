package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuery = "selda/query/v1"
)

// Fingerprint is the hex SHA-256 identity of a compiled query.
type Fingerprint string

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryFingerprint computes the cache key of a compiled query from its SQL
// text, ordered parameters and read-table set. Table order is irrelevant.
// Returns error if a parameter has no canonical form.
func QueryFingerprint(sql string, params []Value, tables []string) (Fingerprint, error) {
	canonical, err := MarshalCanonical(sql, params, tables)
	if err != nil {
		return "", fmt.Errorf("QueryFingerprint: failed to marshal: %w", err)
	}
	return Fingerprint(hashWithDomain(DomainQuery, canonical)), nil
}

// MustQueryFingerprint is like QueryFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustQueryFingerprint(sql string, params []Value, tables []string) Fingerprint {
	fp, err := QueryFingerprint(sql, params, tables)
	if err != nil {
		panic(err)
	}
	return fp
}
