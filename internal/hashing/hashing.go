// Package hashing provides canonical-JSON hashing of sync batches and
// table snapshots. Two peers comparing hashes must agree byte-for-byte,
// so canonicalization is strict: object keys sorted lexicographically, no
// insignificant whitespace, null values preserved, numbers kept in their
// original textual form.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// CanonicalJSON re-encodes a JSON document in canonical form. The input
// must be valid JSON; numbers pass through textually (no float round-trip).
func CanonicalJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", types.InvalidArgumentf("canonical json: %v", err)
	}
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// CanonicalizeMap canonicalizes an already-decoded document.
func CanonicalizeMap(m map[string]interface{}) (string, error) {
	var b strings.Builder
	if err := writeCanonical(&b, m); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(keyJSON)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case json.Number:
		b.WriteString(val.String())
	default:
		// strings, bools, and anything a row fetcher hands us directly.
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		b.Write(enc)
	}
	return nil
}

// EntryCanonicalJSON renders one log entry in canonical wire form.
func EntryCanonicalJSON(e *types.LogEntry) (string, error) {
	doc := map[string]interface{}{
		"version": json.Number(strconv.FormatInt(e.Version, 10)),
		"table":   e.Table,
		"pk":      nil,
		"op":      string(e.Op),
		"payload": nil,
		"origin":  e.Origin,
		"ts":      e.Timestamp,
	}
	if len(e.PK) > 0 {
		pk, err := decodeNumberPreserving(e.PK)
		if err != nil {
			return "", types.InvalidArgumentf("entry v%d pk: %v", e.Version, err)
		}
		doc["pk"] = pk
	}
	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		payload, err := decodeNumberPreserving(e.Payload)
		if err != nil {
			return "", types.InvalidArgumentf("entry v%d payload: %v", e.Version, err)
		}
		doc["payload"] = payload
	}
	return CanonicalizeMap(doc)
}

func decodeNumberPreserving(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	err := dec.Decode(&v)
	return v, err
}

// ComputeBatchHash hashes the concatenated canonical JSON of the entries
// in the order given (the pager supplies version order). Output is
// lowercase hex SHA-256, stable across repeated invocations.
func ComputeBatchHash(entries []types.LogEntry) (string, error) {
	h := sha256.New()
	for i := range entries {
		canon, err := EntryCanonicalJSON(&entries[i])
		if err != nil {
			return "", err
		}
		h.Write([]byte(canon))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash compares two hash strings case-insensitively and returns a
// HashMismatchError on divergence.
func VerifyHash(expected, actual string) error {
	if !strings.EqualFold(expected, actual) {
		return &types.HashMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}

// VerifyBatch recomputes a batch's hash and checks it against the hash
// carried on the batch. Batches without a hash verify trivially.
func VerifyBatch(b *types.Batch) error {
	if b.Hash == "" {
		return nil
	}
	actual, err := ComputeBatchHash(b.Entries)
	if err != nil {
		return err
	}
	return VerifyHash(b.Hash, actual)
}
