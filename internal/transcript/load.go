package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Load decodes a JSON array of messages and orders it by send time. Messages
// sharing a timestamp keep their input order.
func Load(r io.Reader) ([]Message, error) {
	var messages []Message
	if err := json.NewDecoder(r).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
	return messages, nil
}
