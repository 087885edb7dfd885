package bus

import (
	"encoding/json"
	"strings"
	"sync"
)

// ContextStore mirrors the state of external (non-LSH) actuators published
// by a bridge such as zigbee2mqtt. It implements the core's ContextReader.
// It is safe for concurrent use: bus callbacks write while the core reads.
type ContextStore struct {
	mu     sync.RWMutex
	states map[string]bool
}

// NewContextStore creates an empty context store.
func NewContextStore() *ContextStore {
	return &ContextStore{states: make(map[string]bool)}
}

// ReadBool returns the value under key and whether a boolean was present.
func (c *ContextStore) ReadBool(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.states[key]
	return v, ok
}

// Set stores a boolean under key.
func (c *ContextStore) Set(key string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = value
}

// Len returns the number of mirrored states.
func (c *ContextStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

// ParseBoolPayload interprets a bridge state payload as a boolean. Accepted
// forms: "true"/"false", "ON"/"OFF" (any case), "1"/"0", and JSON objects
// carrying a "state" field in one of those forms.
func ParseBoolPayload(payload []byte) (bool, bool) {
	s := strings.TrimSpace(string(payload))

	if strings.HasPrefix(s, "{") {
		var obj struct {
			State any `json:"state"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil || obj.State == nil {
			return false, false
		}
		switch v := obj.State.(type) {
		case bool:
			return v, true
		case string:
			return parseBoolWord(v)
		default:
			return false, false
		}
	}

	return parseBoolWord(s)
}

func parseBoolWord(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "1":
		return true, true
	case "false", "off", "0":
		return false, true
	default:
		return false, false
	}
}
