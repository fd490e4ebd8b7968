// Package fingerprint derives deterministic identifiers from payload data so
// repeated pipeline runs over the same inputs produce identical output.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CanonicalTxID derives the canonical transaction id from the identity tuple
// {store_id, earliest_timestamp, total_amount, device_id}. Absent fields hash
// as empty strings so the id stays stable across runs.
func CanonicalTxID(storeID *string, timestamp *time.Time, totalAmount *float64, deviceID *string) string {
	var sb strings.Builder
	if storeID != nil {
		sb.WriteString(*storeID)
	}
	sb.WriteByte('|')
	if timestamp != nil {
		sb.WriteString(timestamp.UTC().Format(time.RFC3339))
	}
	sb.WriteByte('|')
	if totalAmount != nil {
		sb.WriteString(strconv.FormatFloat(*totalAmount, 'f', 2, 64))
	}
	sb.WriteByte('|')
	if deviceID != nil {
		sb.WriteString(*deviceID)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// Generate creates a deterministic fingerprint for a decoded payload document.
// The fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	canonical := canonicalize(data)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a fingerprint from raw JSON
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// canonicalize creates a deterministic string representation of a value by
// sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(k)
		sb.Write(keyJSON)
		sb.WriteByte(':')
		sb.WriteString(canonicalize(m[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func canonicalizeArray(arr []any) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(canonicalize(v))
	}
	sb.WriteByte(']')
	return sb.String()
}
