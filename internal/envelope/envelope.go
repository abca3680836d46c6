// Package envelope defines the plaintext chat record that is encrypted and
// broadcast: who sent it, what they said, and the local HHMM it was sent.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is hours and minutes, no separator, no date or zone.
const TimestampLayout = "1504"

// ErrParse is returned when bytes do not decode to a complete Envelope.
var ErrParse = errors.New("envelope: malformed")

// Envelope is one chat message. The JSON keys match what peers put on the wire.
type Envelope struct {
	Sender    string `json:"name"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// New builds an envelope stamped with at's local wall-clock time.
func New(sender, body string, at time.Time) Envelope {
	return Envelope{
		Sender:    sender,
		Body:      body,
		Timestamp: at.Format(TimestampLayout),
	}
}

// Marshal encodes e for encryption.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	return b, nil
}

// Parse decodes b. Anything that is not a JSON object carrying all three
// string fields returns an error wrapping ErrParse. Keys must match exactly;
// encoding/json alone would also accept "NAME" or "Message".
func Parse(b []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var e Envelope
	var missing []string
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"name", &e.Sender},
		{"message", &e.Body},
		{"timestamp", &e.Timestamp},
	} {
		raw, ok := fields[f.key]
		if !ok || string(raw) == "null" {
			missing = append(missing, f.key)
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Envelope{}, fmt.Errorf("%w: %s: %v", ErrParse, f.key, err)
		}
	}
	if len(missing) > 0 {
		return Envelope{}, fmt.Errorf("%w: missing %s", ErrParse, strings.Join(missing, ", "))
	}
	return e, nil
}

// Line renders e the way the console shows a chat message.
func (e Envelope) Line() string {
	return fmt.Sprintf("%s @ %s: %s", e.Sender, e.Timestamp, e.Body)
}

// RawLine renders an undecodable payload tagged with the sender's address.
// Invalid UTF-8 is replaced so garbled plaintext stays printable.
func RawLine(addr string, payload []byte) string {
	return fmt.Sprintf("%s: %s", addr, strings.ToValidUTF8(string(payload), "�"))
}
