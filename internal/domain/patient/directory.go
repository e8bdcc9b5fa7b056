package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry pairs a patient with the id it is stored under.
type Entry struct {
	ID      string
	Patient Patient
}

// Directory is the full id -> record mapping in insertion order. It encodes
// as a single JSON object keyed by id.
type Directory []Entry

// Index returns the position of id, or -1.
func (d Directory) Index(id string) int {
	for i, e := range d {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Records returns the values without their ids, in directory order.
func (d Directory) Records() []Patient {
	out := make([]Patient, len(d))
	for i, e := range d {
		out[i] = e.Patient
	}
	return out
}

func (d Directory) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Patient)
		if err != nil {
			return nil, fmt.Errorf("encode patient %s: %w", e.ID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by id, keeping key order. A repeated
// key keeps its first position and its last value. Every record is
// re-derived on the way in.
func (d *Directory) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("patient directory must be a JSON object")
	}

	out := Directory{}
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}
		var p Patient
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode patient %s: %w", id, err)
		}
		p = p.Derive()
		if i, ok := seen[id]; ok {
			out[i].Patient = p
			continue
		}
		seen[id] = len(out)
		out = append(out, Entry{ID: id, Patient: p})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}
