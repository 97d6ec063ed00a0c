package hints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Store persists the hint table as a single document, overwritten wholesale on
// each mutation. Implementations must tolerate a missing document by returning
// an empty slice and no error.
type Store interface {
	Load(ctx context.Context) ([]CategoryHints, error)
	Save(ctx context.Context, entries []CategoryHints) error
}

// MarshalEntries encodes entries as a compact JSON object whose key order is
// the entry order. encoding/json alone cannot be used here: a Go map would
// shuffle the keys and lose the match priority.
func MarshalEntries(entries []CategoryHints) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Category)
		if err != nil {
			return nil, fmt.Errorf("marshaling category %q: %w", e.Category, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		kws := e.Keywords
		if kws == nil {
			kws = []string{}
		}
		val, err := json.Marshal(kws)
		if err != nil {
			return nil, fmt.Errorf("marshaling keywords for %q: %w", e.Category, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalEntries decodes a JSON object of category to keyword list, walking
// the token stream so the original key order survives. A duplicate key keeps
// its first position and takes the last value.
func UnmarshalEntries(data []byte) ([]CategoryHints, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading hints document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("hints document is not a JSON object")
	}

	var entries []CategoryHints
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading hints key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("hints key is not a string: %v", tok)
		}
		var kws []string
		if err := dec.Decode(&kws); err != nil {
			return nil, fmt.Errorf("decoding keywords for %q: %w", key, err)
		}
		if i, seen := index[key]; seen {
			entries[i].Keywords = kws
			continue
		}
		index[key] = len(entries)
		entries = append(entries, CategoryHints{Category: key, Keywords: kws})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading hints document end: %w", err)
	}
	return entries, nil
}
