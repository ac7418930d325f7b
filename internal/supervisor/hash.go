package supervisor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ParamsHash returns the hex SHA-256 over the canonical JSON encoding of the
// params. encoding/json writes map keys in sorted order, so two semantically
// equal param sets hash identically regardless of construction order. Nil and
// empty params hash the same.
func ParamsHash(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		canonical = []byte("{}")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
