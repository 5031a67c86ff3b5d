package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const session = "3f2c6d1e-8a57-4b6e-9d2a-1c0e5b7f9a41"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usd(amount string) catalog.Money {
	return catalog.Money{Amount: decimal.RequireFromString(amount), CurrencyCode: "USD"}
}

var product = &catalog.Product{
	ID:     "p-1",
	Handle: "faith-tee",
	Title:  "Faith Tee",
	Images: []catalog.Image{{URL: "https://cdn.example.com/faith.jpg"}},
}

func newVariant(id, price string) *catalog.Variant {
	return &catalog.Variant{
		ID:               id,
		Title:            "M / Black",
		Price:            usd(price),
		AvailableForSale: true,
		SelectedOptions:  []catalog.SelectedOption{{Name: "Size", Value: "M"}, {Name: "Color", Value: "Black"}},
	}
}

func newStore(t *testing.T, st storage.Storage) *Store {
	t.Helper()
	return NewStore(context.Background(), st, session, "USD", discardLogger())
}

func add(t *testing.T, s *Store, v *catalog.Variant, qty int) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(), AddItem{Product: product, Variant: v, Quantity: qty}))
}

func assertSubtotal(t *testing.T, s *Store, expected string) {
	t.Helper()
	got := s.Subtotal()
	assert.True(t, got.Amount.Equal(decimal.RequireFromString(expected)), "subtotal %s, want %s", got, expected)
	assert.Equal(t, "USD", got.CurrencyCode)
}

func TestStore_Scenario(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryStorage())
	variantA := newVariant("variant-a", "50")
	variantB := newVariant("variant-b", "30")

	assertSubtotal(t, s, "0")
	assert.Empty(t, s.Lines())

	add(t, s, variantA, 1)
	assertSubtotal(t, s, "50")
	assert.Len(t, s.Lines(), 1)

	add(t, s, variantA, 2)
	assertSubtotal(t, s, "150")
	require.Len(t, s.Lines(), 1)
	assert.Equal(t, 3, s.Lines()[0].Quantity)

	add(t, s, variantB, 1)
	assertSubtotal(t, s, "180")
	assert.Len(t, s.Lines(), 2)

	require.NoError(t, s.UpdateQuantity(ctx, "variant-a", 0))
	assertSubtotal(t, s, "30")
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "variant-b", lines[0].VariantID)
}

func TestStore_AddTwiceMerges(t *testing.T) {
	s := newStore(t, storage.NewMemoryStorage())
	v := newVariant("v1", "25")

	add(t, s, v, 1)
	add(t, s, v, 1)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, s.ItemCount())
}

func TestStore_AddKeepsFirstPriceSnapshot(t *testing.T) {
	s := newStore(t, storage.NewMemoryStorage())

	add(t, s, newVariant("v1", "25"), 1)
	add(t, s, newVariant("v1", "99"), 1)

	assertSubtotal(t, s, "50")
}

func TestStore_AddCopiesDisplayData(t *testing.T) {
	s := newStore(t, storage.NewMemoryStorage())
	v := newVariant("v1", "25")

	add(t, s, v, 1)

	l := s.Lines()[0]
	assert.Equal(t, "p-1", l.ProductID)
	assert.Equal(t, "faith-tee", l.ProductHandle)
	assert.Equal(t, "Faith Tee", l.ProductTitle)
	assert.Equal(t, "M / Black", l.VariantTitle)
	assert.Equal(t, "https://cdn.example.com/faith.jpg", l.ImageURL)
	assert.Equal(t, v.SelectedOptions, l.Selection)
	assert.Equal(t, "v1", l.ID())
}

func TestStore_AddValidation(t *testing.T) {
	eur := newVariant("v-eur", "10")
	eur.Price.CurrencyCode = "EUR"

	testCases := []struct {
		name        string
		item        AddItem
		expectError error
	}{
		{name: "nil variant", item: AddItem{Product: product, Quantity: 1}, expectError: ErrInvalidVariant},
		{name: "empty id", item: AddItem{Product: product, Variant: newVariant("", "1"), Quantity: 1}, expectError: ErrInvalidVariant},
		{name: "zero quantity", item: AddItem{Product: product, Variant: newVariant("v", "1"), Quantity: 0}, expectError: ErrInvalidQuantity},
		{name: "negative quantity", item: AddItem{Product: product, Variant: newVariant("v", "1"), Quantity: -2}, expectError: ErrInvalidQuantity},
		{name: "foreign currency", item: AddItem{Product: product, Variant: eur, Quantity: 1}, expectError: ErrCurrencyMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			s := newStore(t, storage.NewMemoryStorage())

			// when
			err := s.Add(context.Background(), tc.item)

			// then
			assert.ErrorIs(t, err, tc.expectError)
			assert.Empty(t, s.Lines())
			assert.Equal(t, uint64(0), s.Snapshot().Version)
		})
	}
}

func TestStore_UpdateQuantity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryStorage())
	add(t, s, newVariant("v1", "10"), 4)
	add(t, s, newVariant("v2", "3.50"), 2)

	require.NoError(t, s.UpdateQuantity(ctx, "v1", 1))
	assertSubtotal(t, s, "17")
	assert.Equal(t, 1, s.Lines()[0].Quantity, "absolute set, not increment")

	before := len(s.Lines())
	require.NoError(t, s.UpdateQuantity(ctx, "v2", 0))
	assert.Len(t, s.Lines(), before-1)
	assertSubtotal(t, s, "10")

	require.NoError(t, s.UpdateQuantity(ctx, "v1", -5))
	assert.Empty(t, s.Lines())

	assert.ErrorIs(t, s.UpdateQuantity(ctx, "missing", 3), ErrLineNotFound)
}

func TestStore_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryStorage())
	add(t, s, newVariant("v1", "10"), 1)
	add(t, s, newVariant("v2", "20"), 1)

	require.NoError(t, s.Remove(ctx, "v1"))
	version := s.Snapshot().Version
	require.NoError(t, s.Remove(ctx, "v1"), "removing a missing line is a no-op")
	assert.Equal(t, version, s.Snapshot().Version)
	assertSubtotal(t, s, "20")

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Lines())
	assertSubtotal(t, s, "0")
	assert.Equal(t, 0, s.ItemCount())
}

func TestStore_LinesReturnsCopy(t *testing.T) {
	s := newStore(t, storage.NewMemoryStorage())
	add(t, s, newVariant("v1", "10"), 1)

	lines := s.Lines()
	lines[0].Quantity = 99
	lines[0].Selection[0].Value = "XL"

	l := s.Lines()[0]
	assert.Equal(t, 1, l.Quantity)
	assert.Equal(t, "M", l.Selection[0].Value)
}

func TestStore_RandomOperationsKeepSubtotal(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1024))
	variants := []*catalog.Variant{
		newVariant("a", "19.99"),
		newVariant("b", "5.25"),
		newVariant("c", "120"),
		newVariant("d", "0.10"),
	}
	ctx := context.Background()

	for run := range 50 {
		s := newStore(t, storage.NewMemoryStorage())
		model := map[string]int{}
		for step := range 100 {
			v := variants[r.IntN(len(variants))]
			switch r.IntN(4) {
			case 0, 1:
				qty := 1 + r.IntN(5)
				require.NoError(t, s.Add(ctx, AddItem{Product: product, Variant: v, Quantity: qty}))
				model[v.ID] += qty
			case 2:
				qty := r.IntN(6) - 1
				err := s.UpdateQuantity(ctx, v.ID, qty)
				if _, ok := model[v.ID]; !ok {
					require.ErrorIs(t, err, ErrLineNotFound)
					continue
				}
				require.NoError(t, err)
				if qty <= 0 {
					delete(model, v.ID)
				} else {
					model[v.ID] = qty
				}
			case 3:
				require.NoError(t, s.Remove(ctx, v.ID))
				delete(model, v.ID)
			}

			expected := decimal.Zero
			lines := s.Lines()
			seen := map[string]bool{}
			for _, l := range lines {
				require.False(t, seen[l.VariantID], "duplicate line run=%d step=%d", run, step)
				seen[l.VariantID] = true
				require.Positive(t, l.Quantity)
				require.Equal(t, model[l.VariantID], l.Quantity)
				expected = expected.Add(l.Price.Amount.Mul(decimal.NewFromInt(int64(l.Quantity))))
			}
			require.Len(t, lines, len(model))
			require.True(t, s.Subtotal().Amount.Equal(expected), "run=%d step=%d", run, step)
		}
	}
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	// given
	st := storage.NewMemoryStorage()
	s := newStore(t, st)
	for i := range 5 {
		add(t, s, newVariant(fmt.Sprintf("v%d", i), fmt.Sprintf("%d.99", 10+i)), i+1)
	}
	before := s.Snapshot()

	// when
	reloaded := newStore(t, st)

	// then
	after := reloaded.Snapshot()
	beforeBytes, err := Encode(before.Currency, before.Version, before.Lines)
	require.NoError(t, err)
	afterBytes, err := Encode(after.Currency, after.Version, after.Lines)
	require.NoError(t, err)
	assert.Equal(t, string(beforeBytes), string(afterBytes))
	assert.True(t, before.Subtotal.Equal(after.Subtotal))
	assert.Equal(t, before.ItemCount, after.ItemCount)

	persisted, err := st.Get(context.Background(), session, StorageKey)
	require.NoError(t, err)
	assert.Equal(t, string(beforeBytes), string(persisted))
}

func TestStore_VersionSurvivesReload(t *testing.T) {
	// given
	st := storage.NewMemoryStorage()
	s := newStore(t, st)
	add(t, s, newVariant("v1", "10"), 1)
	add(t, s, newVariant("v2", "20"), 1)
	require.Equal(t, uint64(2), s.Snapshot().Version)

	// when
	reloaded := newStore(t, st)
	var seen []uint64
	reloaded.Subscribe(func(snap Snapshot) { seen = append(seen, snap.Version) })
	add(t, reloaded, newVariant("v1", "10"), 1)

	// then
	assert.Equal(t, []uint64{3}, seen)
	assert.Equal(t, uint64(3), reloaded.Snapshot().Version)
}

func TestStore_DiscardedRecordKeepsRevision(t *testing.T) {
	// given
	st := storage.NewMemoryStorage()
	data := `{"version":1,"revision":7,"currency":"EUR","lines":[]}`
	require.NoError(t, st.Put(context.Background(), session, StorageKey, []byte(data)))

	// when
	s := newStore(t, st)
	add(t, s, newVariant("v1", "10"), 1)

	// then
	assert.Equal(t, uint64(8), s.Snapshot().Version)
}

func TestStore_LoadFallsBackToEmpty(t *testing.T) {
	valid := `{"product_id":"p","variant_id":"v1","price":{"amount":"5","currency_code":"USD"},"quantity":1}`
	testCases := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{{{`},
		{name: "wrong shape", data: `["cart"]`},
		{name: "schema version", data: `{"version":2,"currency":"USD","lines":[` + valid + `]}`},
		{name: "currency", data: `{"version":1,"currency":"EUR","lines":[` + valid + `]}`},
		{name: "duplicate lines", data: `{"version":1,"currency":"USD","lines":[` + valid + `,` + valid + `]}`},
		{name: "zero quantity", data: `{"version":1,"currency":"USD","lines":[{"variant_id":"v1","price":{"amount":"5","currency_code":"USD"},"quantity":0}]}`},
		{name: "missing variant id", data: `{"version":1,"currency":"USD","lines":[{"price":{"amount":"5","currency_code":"USD"},"quantity":1}]}`},
		{name: "line currency", data: `{"version":1,"currency":"USD","lines":[{"variant_id":"v1","price":{"amount":"5","currency_code":"GBP"},"quantity":1}]}`},
		{name: "bad amount", data: `{"version":1,"currency":"USD","lines":[{"variant_id":"v1","price":{"amount":"five","currency_code":"USD"},"quantity":1}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			st := storage.NewMemoryStorage()
			require.NoError(t, st.Put(context.Background(), session, StorageKey, []byte(tc.data)))

			// when
			s := newStore(t, st)

			// then
			assert.Empty(t, s.Lines())
			assertSubtotal(t, s, "0")
		})
	}
}

func TestStore_LoadValidRecord(t *testing.T) {
	st := storage.NewMemoryStorage()
	data := `{"version":1,"currency":"USD","lines":[{"variant_id":"v1","product_title":"Tee","price":{"amount":"12.5","currency_code":"USD"},"quantity":2}]}`
	require.NoError(t, st.Put(context.Background(), session, StorageKey, []byte(data)))

	s := newStore(t, st)

	require.Len(t, s.Lines(), 1)
	assertSubtotal(t, s, "25")
	assert.Equal(t, uint64(0), s.Snapshot().Version)
}

// faultyStorage fails reads and/or writes on demand.
type faultyStorage struct {
	storage.Storage
	getErr error
	putErr error
	puts   int
}

func (f *faultyStorage) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Storage.Get(ctx, ns, key)
}

func (f *faultyStorage) Put(ctx context.Context, ns, key string, value []byte) error {
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	return f.Storage.Put(ctx, ns, key, value)
}

func TestStore_StorageFailuresAreNotReturned(t *testing.T) {
	// given
	st := &faultyStorage{
		Storage: storage.NewMemoryStorage(),
		getErr:  errors.New("disk on fire"),
		putErr:  errors.New("quota exceeded"),
	}

	// when
	s := newStore(t, st)
	err := s.Add(context.Background(), AddItem{Product: product, Variant: newVariant("v1", "10"), Quantity: 1})

	// then
	require.NoError(t, err)
	assert.Equal(t, 1, st.puts, "mutation was persisted synchronously")
	assert.Len(t, s.Lines(), 1, "in-memory state still reflects the mutation")
	assertSubtotal(t, s, "10")
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemoryStorage())
	var got []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		got = append(got, snap)
	})

	add(t, s, newVariant("v1", "10"), 1)
	add(t, s, newVariant("v1", "10"), 2)
	require.NoError(t, s.Remove(ctx, "absent"))
	require.Error(t, s.UpdateQuantity(ctx, "absent", 1))
	unsubscribe()
	require.NoError(t, s.Clear(ctx))

	require.Len(t, got, 2, "failed and no-op mutations do not notify")
	assert.Equal(t, uint64(1), got[0].Version)
	assert.Equal(t, uint64(2), got[1].Version)
	assert.Equal(t, 3, got[1].ItemCount)
	assert.True(t, got[1].Subtotal.Amount.Equal(decimal.NewFromInt(30)))
}

func TestStore_ConcurrentAdds(t *testing.T) {
	s := newStore(t, storage.NewMemoryStorage())
	v := newVariant("v1", "2")
	var last uint64
	var mu sync.Mutex
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		assert.Greater(t, snap.Version, last)
		last = snap.Version
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(context.Background(), AddItem{Product: product, Variant: v, Quantity: 1})
		}()
	}
	wg.Wait()

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 50, lines[0].Quantity)
	assertSubtotal(t, s, "100")
	assert.Equal(t, uint64(50), s.Snapshot().Version)
}
