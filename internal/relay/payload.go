package relay

import (
	"bytes"
	"encoding/json"
)

// WebRTC negotiation payloads arrive in two shapes: a structured JSON
// object, or a JSON string whose contents are themselves JSON (older
// agents serialise twice). The helpers here resolve that union with
// best-effort decoding; anything unparseable is treated as an opaque
// value and passed through untouched.

// decodeObject attempts to interpret a raw payload as a JSON object,
// unwrapping one level of double encoding if needed. The second return
// is false when the payload is absent or not an object in either form.
func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, true
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(inner), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// decodeString attempts to interpret a raw payload as a JSON string.
func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// targetAddress extracts the unicast target from a decoded payload.
// Both targetId and target_id are accepted; older agents send the latter.
// An empty return means the payload names no target.
func targetAddress(obj map[string]any) string {
	if id, ok := obj["targetId"].(string); ok {
		return id
	}
	if id, ok := obj["target_id"].(string); ok {
		return id
	}
	return ""
}

// compactJSON renders a raw payload on one line for log relay. Payloads
// that are not valid JSON are passed through as-is.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
