package repo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// commitMessage is the JSON document stored as a commit's message. Fields
// the engine does not know are preserved across decode and re-encode so a
// newer writer's messages survive a round trip through an older one.
type commitMessage struct {
	Summary  string
	Detail   string
	Markup   Markup
	Revision Revision
	extras   map[string]json.RawMessage
}

func encodeMessage(m *commitMessage) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for k, v := range m.extras {
		fields[k] = v
	}
	put := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[key] = raw
		return nil
	}
	if err := put("summary", m.Summary); err != nil {
		return nil, err
	}
	if err := put("detail", m.Detail); err != nil {
		return nil, err
	}
	if err := put("markup", m.Markup); err != nil {
		return nil, err
	}
	if err := put("revision", m.Revision); err != nil {
		return nil, err
	}

	// Emit keys in sorted order so equal messages are byte-identical.
	keys := maps.Keys(fields)
	slices.Sort(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseMessage(raw []byte) (*commitMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("malformed commit message: %w", err)
	}

	m := &commitMessage{Markup: MarkupPlaintext}
	take := func(key string, v interface{}) error {
		rawField, ok := fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(rawField, v); err != nil {
			return fmt.Errorf("malformed commit message field %q: %w", key, err)
		}
		delete(fields, key)
		return nil
	}
	if err := take("summary", &m.Summary); err != nil {
		return nil, err
	}
	if err := take("detail", &m.Detail); err != nil {
		return nil, err
	}
	if err := take("markup", &m.Markup); err != nil {
		return nil, err
	}
	if err := take("revision", &m.Revision); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		m.extras = fields
	}
	return m, nil
}
