// Package signature verifies provenance tags on workspace records.
//
// A signed record carries a provenance block {signed_by, signature} where
// the signature is an HMAC-SHA256 over the canonical JSON encoding of the
// record with the provenance block removed. Records without a provenance
// block are not checked at all.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ProvenanceField is the record key holding the provenance block.
const ProvenanceField = "provenance"

// HasProvenance reports whether the raw document declares a provenance
// block.
func HasProvenance(doc map[string]any) bool {
	_, ok := doc[ProvenanceField]
	return ok
}

// HasValidSignature verifies the provenance tag on doc against the
// workspace signing key. Returns false for any structural defect in the
// block: verification failures and malformed blocks are the same finding
// to the caller.
func HasValidSignature(doc map[string]any, key []byte) bool {
	block, ok := doc[ProvenanceField].(map[string]any)
	if !ok {
		return false
	}
	declared, ok := block["signature"].(string)
	if !ok || declared == "" {
		return false
	}

	payload, err := canonical(doc)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(declared), []byte(want))
}

// Sign computes the provenance signature for doc. Used by writers and by
// tests; the validator only verifies.
func Sign(doc map[string]any, key []byte) (string, error) {
	payload, err := canonical(doc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonical encodes the record minus its provenance block. encoding/json
// sorts map keys, which is the canonical order the writers use.
func canonical(doc map[string]any) ([]byte, error) {
	stripped := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == ProvenanceField {
			continue
		}
		stripped[k] = v
	}
	return json.Marshal(stripped)
}
