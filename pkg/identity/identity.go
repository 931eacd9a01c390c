package identity

import (
	"encoding/json"
	"strings"
)

// uidFields are checked in order when a token parses as an identity object.
var uidFields = []string{"uid", "userId", "user_id", "id"}

// Normalize canonicalizes a participant identifier. Clients sometimes send a
// serialized identity object instead of the plain id; in that case the
// uid-like field is extracted. Anything that does not parse as an object
// carrying one is returned unchanged, so the function is total and
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(token string) string {
	trimmed := strings.TrimSpace(token)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return trimmed
	}

	for _, field := range uidFields {
		if value, ok := payload[field].(string); ok && value != "" {
			// The extracted value may itself be a serialized identity
			// object; recurse until it settles on a plain id.
			return Normalize(value)
		}
	}

	return trimmed
}
