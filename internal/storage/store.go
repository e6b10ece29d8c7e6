// README: Key-value document and append-log store contract shared by cache, history and market data.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidName = errors.New("storage: invalid name")

// Store persists named JSON documents and named append-only logs.
//
// Read of an absent document reports found=false and no error. Log of an absent
// log returns an empty slice. Implementations must be safe for concurrent use and
// atomic per document and per appended record.
type Store interface {
	Read(ctx context.Context, name string) (doc json.RawMessage, found bool, err error)
	Write(ctx context.Context, name string, doc json.RawMessage) error
	Append(ctx context.Context, name string, record json.RawMessage) error
	// Log returns every record of the named log, oldest first.
	Log(ctx context.Context, name string) ([]json.RawMessage, error)
	// Trim drops the oldest records so that at most keep remain.
	Trim(ctx context.Context, name string, keep int) error
}

// ReadInto decodes the named document into v. found is false when the document is absent,
// in which case v is left untouched so callers can pre-fill defaults.
func ReadInto(ctx context.Context, s Store, name string, v any) (bool, error) {
	doc, found, err := s.Read(ctx, name)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", name, err)
	}
	return true, nil
}

// WriteJSON encodes v and writes it as the named document.
func WriteJSON(ctx context.Context, s Store, name string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	return s.Write(ctx, name, doc)
}

// AppendJSON encodes v and appends it to the named log.
func AppendJSON(ctx context.Context, s Store, name string, v any) error {
	rec, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s record: %w", name, err)
	}
	return s.Append(ctx, name, rec)
}

func checkName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	return nil
}
