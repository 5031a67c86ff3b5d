// Package cart implements the per-session cart: an ordered, de-duplicated list of line items
// persisted after every mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/storage"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrCurrencyMismatch = errors.New("price currency does not match cart currency")
	ErrInvalidVariant   = errors.New("variant is required")
	ErrLineNotFound     = errors.New("cart line not found")
)

// errUnchanged aborts a mutation without bumping the version.
var errUnchanged = errors.New("unchanged")

// Line is one cart entry. VariantID is its identity.
type Line struct {
	VariantID     string                   `json:"variant_id"`
	ProductID     string                   `json:"product_id"`
	ProductHandle string                   `json:"product_handle"`
	ProductTitle  string                   `json:"product_title"`
	VariantTitle  string                   `json:"variant_title"`
	ImageURL      string                   `json:"image_url,omitempty"`
	Selection     []catalog.SelectedOption `json:"selection"`
	Price         catalog.Money            `json:"price"`
	Quantity      int                      `json:"quantity"`
}

// ID returns the line identifier used by update and remove.
func (l Line) ID() string {
	return l.VariantID
}

func (l Line) Total() catalog.Money {
	return l.Price.Mul(l.Quantity)
}

// AddItem describes a variant to put into the cart.
// Selection defaults to the variant's own options when empty.
type AddItem struct {
	Product   *catalog.Product
	Variant   *catalog.Variant
	Quantity  int
	Selection []catalog.SelectedOption
}

// Snapshot is a consistent copy of the cart state.
type Snapshot struct {
	Version   uint64        `json:"version"`
	Currency  string        `json:"currency"`
	Lines     []Line        `json:"lines"`
	Subtotal  catalog.Money `json:"subtotal"`
	ItemCount int           `json:"item_count"`
}

// Listener receives a snapshot after every successful mutation.
// Listeners run synchronously and must not mutate the store. Under concurrent mutation a listener
// may skip an intermediate version, but never sees an older one after a newer one.
type Listener func(Snapshot)

// Store is a cart bound to one storage namespace. All mutations are serialized and
// persisted before they return. Persistence failures are logged, not returned.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	storage   storage.Storage
	namespace string
	currency  string
	lines     []Line
	version   uint64
	listeners map[uint64]Listener
	nextID    uint64
	notified  uint64
	logger    *slog.Logger
}

// NewStore loads the cart persisted under namespace, or starts empty when there is none
// or it cannot be used.
func NewStore(ctx context.Context, st storage.Storage, namespace, baseCurrency string, logger *slog.Logger) *Store {
	s := &Store{
		storage:   st,
		namespace: namespace,
		currency:  baseCurrency,
		lines:     []Line{},
		listeners: make(map[uint64]Listener),
		logger:    logger.With("component", "cart", "session_id", namespace),
	}
	s.load(ctx)
	return s
}

// Currency returns the currency all line prices are stored in.
func (s *Store) Currency() string {
	return s.currency
}

// Add merges the quantity into the line for the same variant, or appends a new line.
// The price of an existing line is kept.
func (s *Store) Add(ctx context.Context, item AddItem) error {
	if item.Variant == nil || item.Variant.ID == "" {
		return ErrInvalidVariant
	}
	if item.Quantity < 1 {
		return fmt.Errorf("%d: %w", item.Quantity, ErrInvalidQuantity)
	}
	if item.Variant.Price.CurrencyCode != s.currency {
		return fmt.Errorf("%s vs %s: %w", item.Variant.Price.CurrencyCode, s.currency, ErrCurrencyMismatch)
	}

	return s.mutate(ctx, func() error {
		if i := s.indexLocked(item.Variant.ID); i >= 0 {
			s.lines[i].Quantity += item.Quantity
			return nil
		}
		s.lines = append(s.lines, newLine(item))
		return nil
	})
}

// UpdateQuantity sets the absolute quantity of a line. A quantity of zero or less removes it.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, qty int) error {
	return s.mutate(ctx, func() error {
		i := s.indexLocked(lineID)
		if i < 0 {
			return fmt.Errorf("%s: %w", lineID, ErrLineNotFound)
		}
		if qty <= 0 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return nil
		}
		s.lines[i].Quantity = qty
		return nil
	})
}

// Remove deletes a line. Removing a missing line is a no-op.
func (s *Store) Remove(ctx context.Context, lineID string) error {
	return s.mutate(ctx, func() error {
		i := s.indexLocked(lineID)
		if i < 0 {
			return errUnchanged
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() error {
		s.lines = []Line{}
		return nil
	})
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLinesLocked()
}

// Subtotal is recomputed from the current lines on every call.
func (s *Store) Subtotal() catalog.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked()
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemCountLocked()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.listeners, id)
	}
}

// mutate applies fn under the lock, persists, then notifies listeners.
// A snapshot older than one already delivered is dropped, so listeners only see increasing versions.
func (s *Store) mutate(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	s.version++
	s.persistLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.notified {
		return nil
	}
	s.notified = snap.Version
	for _, l := range s.listeners {
		l(snap)
	}
	return nil
}

func (s *Store) indexLocked(variantID string) int {
	for i := range s.lines {
		if s.lines[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

func (s *Store) copyLinesLocked() []Line {
	out := make([]Line, len(s.lines))
	for i, l := range s.lines {
		l.Selection = append([]catalog.SelectedOption(nil), l.Selection...)
		out[i] = l
	}
	return out
}

func (s *Store) subtotalLocked() catalog.Money {
	total := catalog.Zero(s.currency)
	for _, l := range s.lines {
		total = total.Add(l.Total())
	}
	return total
}

func (s *Store) itemCountLocked() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   s.version,
		Currency:  s.currency,
		Lines:     s.copyLinesLocked(),
		Subtotal:  s.subtotalLocked(),
		ItemCount: s.itemCountLocked(),
	}
}

func newLine(item AddItem) Line {
	sel := item.Selection
	if len(sel) == 0 {
		sel = item.Variant.SelectedOptions
	}
	l := Line{
		VariantID:    item.Variant.ID,
		VariantTitle: item.Variant.Title,
		Selection:    append([]catalog.SelectedOption{}, sel...),
		Price:        item.Variant.Price,
		Quantity:     item.Quantity,
	}
	if item.Variant.Image != nil {
		l.ImageURL = item.Variant.Image.URL
	}
	if p := item.Product; p != nil {
		l.ProductID = p.ID
		l.ProductHandle = p.Handle
		l.ProductTitle = p.Title
		if l.ImageURL == "" {
			if img := p.FeaturedImage(); img != nil {
				l.ImageURL = img.URL
			}
		}
	}
	return l
}
