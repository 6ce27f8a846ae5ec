package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainOutputs = "nbverify/outputs/v1"
	DomainBlob    = "nbverify/blob/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash hashes data under the given domain.
func ContentHash(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// BlobDigest identifies a large payload such as an encoded image.
func BlobDigest(s string) string {
	return hashWithDomain(DomainBlob, []byte(s))
}

// OutputsHash computes a stable identity for an output record sequence.
// Record order is significant.
func OutputsHash(records []OutputRecord) (string, error) {
	list, err := RecordsToList(records)
	if err != nil {
		return "", fmt.Errorf("OutputsHash: %w", err)
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("OutputsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOutputs, canonical), nil
}
