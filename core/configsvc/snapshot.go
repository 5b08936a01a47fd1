package configsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// effectiveOrder is the merge order of scopes, lowest precedence first.
var effectiveOrder = []Scope{ScopeSystem, ScopeApplication, ScopeWorkflow}

// snapshotHash fingerprints merged data. encoding/json writes map keys sorted,
// so equal maps hash equally regardless of insertion order.
func snapshotHash(data map[string]any) (string, error) {
	if data == nil {
		return "", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// snapshotVersion renders per-scope revisions as "system:1|application:0|workflow:3".
func snapshotVersion(revisions map[Scope]int64) string {
	parts := make([]string, 0, len(effectiveOrder))
	for _, scope := range effectiveOrder {
		parts = append(parts, fmt.Sprintf("%s:%d", scope, revisions[scope]))
	}
	return strings.Join(parts, "|")
}
