package currency

import (
	"context"
	"errors"
	"testing"

	"github.com/abgdnv/storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const session = "0c9b7d52-3e4f-4a61-8b2d-6f1e2a3c4d5e"

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, clientIP string) Detection {
	args := m.Called(ctx, clientIP)
	return args.Get(0).(Detection)
}

func newPreference(t *testing.T, st storage.Storage, d Detector) *Preference {
	t.Helper()
	return NewPreference(st, session, defaultTable(t), d, "en-US", discardLogger())
}

func TestPreference_DetectsOnceAndPersists(t *testing.T) {
	// given
	st := storage.NewMemoryStorage()
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, "81.2.69.160").
		Return(Detection{Currency: "GBP", Country: "GB", Detected: true}).Once()

	// when
	first := newPreference(t, st, detector).Current(context.Background(), "81.2.69.160")
	second := newPreference(t, st, detector).Current(context.Background(), "81.2.69.160")

	// then
	assert.Equal(t, Choice{Currency: "GBP", Source: SourceDetected, Country: "GB"}, first)
	assert.Equal(t, first, second, "the persisted detection is reused")
	detector.AssertExpectations(t)
}

func TestPreference_DetectionFailureFallsBackToDefault(t *testing.T) {
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, mock.Anything).
		Return(Detection{Currency: "USD", Detected: false, Reason: "timeout"}).Once()
	p := newPreference(t, storage.NewMemoryStorage(), detector)

	c := p.Current(context.Background(), "8.8.8.8")
	again := p.Current(context.Background(), "8.8.8.8")

	assert.Equal(t, Choice{Currency: "USD", Source: SourceDefault}, c)
	assert.Equal(t, c, again)
	detector.AssertExpectations(t)
}

func TestPreference_ExplicitChoiceWins(t *testing.T) {
	// given
	st := storage.NewMemoryStorage()
	detector := new(MockDetector)
	detector.On("Detect", mock.Anything, mock.Anything).
		Return(Detection{Currency: "JPY", Country: "JP", Detected: true})
	p := newPreference(t, st, detector)
	require.Equal(t, "JPY", p.Current(context.Background(), "1.0.16.1").Currency)

	// when
	chosen, err := p.SetExplicit(context.Background(), "eur")

	// then
	require.NoError(t, err)
	assert.Equal(t, "EUR", chosen.Currency)
	assert.Equal(t, SourceExplicit, chosen.Source)
	assert.Equal(t, chosen, p.Current(context.Background(), "1.0.16.1"))

	reloaded := newPreference(t, st, detector)
	assert.Equal(t, chosen, reloaded.Current(context.Background(), "1.0.16.1"), "explicit choice survives reload")
	detector.AssertNumberOfCalls(t, "Detect", 1)
}

func TestPreference_SetExplicitUnsupported(t *testing.T) {
	p := newPreference(t, storage.NewMemoryStorage(), nil)

	_, err := p.SetExplicit(context.Background(), "BTC")

	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.Equal(t, "USD", p.Current(context.Background(), "").Currency)
}

func TestPreference_IgnoresBadPersistedData(t *testing.T) {
	for _, data := range []string{`nope`, `{"currency":"BTC","source":"explicit"}`, `{"currency":"EUR","source":"guessed"}`} {
		st := storage.NewMemoryStorage()
		require.NoError(t, st.Put(context.Background(), session, CurrencyKey, []byte(data)))

		c := newPreference(t, st, nil).Current(context.Background(), "")

		assert.Equal(t, Choice{Currency: "USD", Source: SourceDefault}, c, data)
	}
}

// brokenStorage fails every operation.
type brokenStorage struct{}

func (brokenStorage) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("unavailable")
}
func (brokenStorage) Put(context.Context, string, string, []byte) error {
	return errors.New("unavailable")
}
func (brokenStorage) Delete(context.Context, string, string) error {
	return errors.New("unavailable")
}

func TestPreference_StorageFailuresDegradeToMemory(t *testing.T) {
	p := newPreference(t, brokenStorage{}, nil)

	assert.Equal(t, "USD", p.Current(context.Background(), "8.8.8.8").Currency)
	_, err := p.SetExplicit(context.Background(), "CAD")
	require.NoError(t, err)
	assert.Equal(t, "CAD", p.Current(context.Background(), "8.8.8.8").Currency)

	assert.Equal(t, "en-US", p.Locale(context.Background()))
	locale, err := p.SetLocale(context.Background(), "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, "fr-CA", locale)
	assert.Equal(t, "fr-CA", p.Locale(context.Background()))
}

func TestPreference_Locale(t *testing.T) {
	st := storage.NewMemoryStorage()
	p := newPreference(t, st, nil)

	assert.Equal(t, "en-US", p.Locale(context.Background()))

	_, err := p.SetLocale(context.Background(), "!!")
	assert.ErrorIs(t, err, ErrUnsupportedLocale)

	got, err := p.SetLocale(context.Background(), "de-DE")
	require.NoError(t, err)
	assert.Equal(t, "de-DE", got)
	assert.Equal(t, "de-DE", newPreference(t, st, nil).Locale(context.Background()))
}
