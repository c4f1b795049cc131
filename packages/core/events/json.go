package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes ev as a single JSON object with a "$type" discriminator.
// Internal diagnostics have no wire form and return ErrNotSerializable.
func Marshal(ev Event) ([]byte, error) {
	if _, ok := ev.(*InternalDiagnostic); ok {
		return nil, ErrNotSerializable
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"$type":`)
	kind, _ := json.Marshal(string(ev.Kind()))
	buf.Write(kind)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
