package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// record is the durable encoding of an Entry. Times are unix milliseconds.
type record struct {
	Value    json.RawMessage `json:"value"`
	ExpireAt int64           `json:"expireAt"`
	StoredAt int64           `json:"storedAt"`
}

func encodeEntry(e *Entry) (string, error) {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	data, err := json.Marshal(record{
		Value:    raw,
		ExpireAt: e.ExpireAt.UnixMilli(),
		StoredAt: e.StoredAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return string(data), nil
}

// decodeEntry parses a durable record. The value is left as raw JSON; use
// As to convert it to a concrete type.
func decodeEntry(s string) (*Entry, error) {
	var r record
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if r.ExpireAt == 0 || len(r.Value) == 0 {
		return nil, fmt.Errorf("%w: incomplete record", ErrSerialization)
	}
	return &Entry{
		Value:    r.Value,
		ExpireAt: time.UnixMilli(r.ExpireAt),
		StoredAt: time.UnixMilli(r.StoredAt),
	}, nil
}

// As converts a value returned by Get or GetOrSet into T. Values read back
// from the durable store are raw JSON and are decoded; values still held in
// memory are returned as stored when their type matches.
func As[T any](v any) (T, error) {
	var out T
	switch x := v.(type) {
	case T:
		return x, nil
	case json.RawMessage:
		if err := json.Unmarshal(x, &out); err != nil {
			return out, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return out, nil
	case nil:
		return out, nil
	}
	// Memory values of a different Go type: round-trip through JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}
