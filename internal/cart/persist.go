package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abgdnv/storefront/internal/storage"
)

// StorageKey is the key the cart is persisted under in its namespace.
const StorageKey = "cart"

const schemaVersion = 1

// record is the persisted cart. Version is the schema version; Revision is the snapshot version
// of the last mutation, so versions keep increasing across reloads.
type record struct {
	Version  int    `json:"version"`
	Revision uint64 `json:"revision"`
	Currency string `json:"currency"`
	Lines    []Line `json:"lines"`
}

// Encode serializes lines in the persisted record format.
func Encode(currency string, revision uint64, lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(record{Version: schemaVersion, Revision: revision, Currency: currency, Lines: lines})
}

// Decode parses a persisted record and checks it against the cart invariants.
// The revision is returned whenever the record could be parsed, even if its lines are rejected.
func Decode(data []byte, currency string) ([]Line, uint64, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, 0, fmt.Errorf("undecodable cart: %w", err)
	}
	lines, err := rec.validLines(currency)
	return lines, rec.Revision, err
}

func (rec *record) validLines(currency string) ([]Line, error) {
	if rec.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported cart schema version %d", rec.Version)
	}
	if rec.Currency != currency {
		return nil, fmt.Errorf("cart currency %q, want %q", rec.Currency, currency)
	}
	seen := make(map[string]struct{}, len(rec.Lines))
	for _, l := range rec.Lines {
		if l.VariantID == "" {
			return nil, errors.New("cart line without variant id")
		}
		if _, dup := seen[l.VariantID]; dup {
			return nil, fmt.Errorf("duplicate cart line %s", l.VariantID)
		}
		seen[l.VariantID] = struct{}{}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("cart line %s has quantity %d", l.VariantID, l.Quantity)
		}
		if l.Price.CurrencyCode != currency {
			return nil, fmt.Errorf("cart line %s priced in %q", l.VariantID, l.Price.CurrencyCode)
		}
	}
	if rec.Lines == nil {
		rec.Lines = []Line{}
	}
	return rec.Lines, nil
}

// load restores the persisted cart. Anything unusable leaves the cart empty.
func (s *Store) load(ctx context.Context) {
	data, err := s.storage.Get(ctx, s.namespace, StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to read persisted cart, starting empty", "error", err)
		}
		return
	}
	lines, revision, err := Decode(data, s.currency)
	s.version = revision
	s.notified = revision
	if err != nil {
		s.logger.WarnContext(ctx, "Discarding persisted cart", "error", err)
		return
	}
	s.lines = lines
	s.logger.DebugContext(ctx, "Cart restored", "lines", len(lines), "version", revision)
}

// persistLocked writes the current lines. The write is not tied to the caller's cancellation.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := Encode(s.currency, s.version, s.lines)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to encode cart", "error", err)
		return
	}
	if err := s.storage.Put(context.WithoutCancel(ctx), s.namespace, StorageKey, data); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist cart", "version", s.version, "error", err)
	}
}
