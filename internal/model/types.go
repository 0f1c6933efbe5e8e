package model

import (
	"encoding/json"
	"fmt"
)

// DefaultPort is used when an entry is added or decoded without an explicit port.
const DefaultPort = 22

// Entry is one pseudonym target: the username, address, and port used to reach it.
// The pseudonym itself is the Table key.
type Entry struct {
	Username string
	IP       string
	Port     int
}

// Table maps pseudonym to its target entry. It is the whole persisted state of
// the tool and is rewritten in full after every mutation.
type Table map[string]Entry

// Target returns the user@host destination string for the entry.
func (e Entry) Target() string {
	return fmt.Sprintf("%s@%s", e.Username, e.IP)
}

// MarshalJSON encodes the entry in the on-disk tuple form: [username, ip, port].
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Username, e.IP, e.Port})
}

// UnmarshalJSON decodes the [username, ip, port] tuple form. A missing or zero
// port falls back to DefaultPort.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("entry must be a [username, ip, port] array: %w", err)
	}
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("entry must have 2 or 3 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &e.Username); err != nil {
		return fmt.Errorf("entry username: %w", err)
	}
	if err := json.Unmarshal(parts[1], &e.IP); err != nil {
		return fmt.Errorf("entry ip: %w", err)
	}
	e.Port = DefaultPort
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &e.Port); err != nil {
			return fmt.Errorf("entry port: %w", err)
		}
		if e.Port == 0 {
			e.Port = DefaultPort
		}
	}
	return nil
}
