package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type scripted struct {
	name     string
	priority int
	handles  bool
	result   *NormalizedProduct
	err      error
	panics   bool
	calls    int
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Priority() int { return s.priority }

func (s *scripted) CanHandle(RawProduct) bool { return s.handles }

func (s *scripted) Normalize(context.Context, RawProduct) (*NormalizedProduct, error) {
	s.calls++
	if s.panics {
		panic("bad normalizer")
	}
	return s.result, s.err
}

func TestChainOrderAndFallthrough(t *testing.T) {
	declines := &scripted{name: "declines", priority: 200}
	fails := &scripted{name: "fails", priority: 150, handles: true, err: errors.New("quota")}
	panics := &scripted{name: "panics", priority: 120, handles: true, panics: true}
	empty := &scripted{name: "empty", priority: 110, handles: true}
	wins := &scripted{name: "wins", priority: 100, handles: true, result: &NormalizedProduct{BaseName: "X"}}
	last := &scripted{name: "last", priority: 0, handles: true, result: &NormalizedProduct{BaseName: "Y"}}

	c := NewChain(nil, last, wins, empty, panics, fails, declines)
	got := c.Normalize(context.Background(), RawProduct{Text: "x"})
	require.NotNil(t, got)
	require.Equal(t, "X", got.BaseName)
	require.Equal(t, "wins", got.Normalizer)
	require.Zero(t, declines.calls)
	require.Equal(t, 1, fails.calls)
	require.Equal(t, 1, empty.calls)
	require.Zero(t, last.calls)

	names := []string{}
	for _, n := range c.Normalizers() {
		names = append(names, n.Name())
	}
	require.Equal(t, []string{"declines", "fails", "panics", "empty", "wins", "last"}, names)
}

func TestChainReturnsNilWhenEveryoneDeclines(t *testing.T) {
	c := NewChain(nil, &scripted{name: "a"}, &scripted{name: "b", handles: true})
	require.Nil(t, c.Normalize(context.Background(), RawProduct{Text: "x"}))
}

func TestChainWithAIFallsBackToManual(t *testing.T) {
	c := NewChain(nil, NewManualNormalizer(), NewAINormalizer(AIConfig{}))
	require.Equal(t, "ai", c.Normalizers()[0].Name())

	got := c.Normalize(context.Background(), RawProduct{Name: "arroz largo fino 1 kg"})
	require.NotNil(t, got)
	require.Equal(t, "manual", got.Normalizer)
	require.Equal(t, "Arroz Largo Fino", got.BaseName)
}

func TestManualNormalizer(t *testing.T) {
	n := NewManualNormalizer()
	cases := []struct {
		raw         RawProduct
		baseName    string
		variantName string
		size        string
		unit        string
	}{
		{RawProduct{Name: "  GALLETAS   de chocolate 360G "}, "Galletas De Chocolate", "Galletas De Chocolate 360g", "360g", "g"},
		{RawProduct{Text: "Gaseosa cola 1,5 L *promo*"}, "Gaseosa Cola Promo", "Gaseosa Cola 1.5l Promo", "1.5l", "l"},
		{RawProduct{Text: "Jugo naranja"}, "Jugo Naranja", "Jugo Naranja", "", ""},
		{RawProduct{Text: "500 ml"}, "500ml", "500ml", "500ml", "ml"},
		{RawProduct{Text: "Cuaderno 1 lápiz"}, "Cuaderno 1 Lápiz", "Cuaderno 1 Lápiz", "", ""},
		{RawProduct{Text: "Pack 2 góndolas"}, "Pack 2 Góndolas", "Pack 2 Góndolas", "", ""},
		{RawProduct{Text: "Pack 2 góndolas 500 g"}, "Pack 2 Góndolas", "Pack 2 Góndolas 500g", "500g", "g"},
	}
	for _, tc := range cases {
		got, err := n.Normalize(context.Background(), tc.raw)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, tc.baseName, got.BaseName, tc.raw.Describe())
		require.Equal(t, tc.variantName, got.VariantName, tc.raw.Describe())
		require.Equal(t, tc.size, got.Details.Size)
		require.Equal(t, tc.unit, got.Details.Unit)
	}

	got, err := n.Normalize(context.Background(), RawProduct{Text: " ** "})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestManualNormalizerIsIdempotent(t *testing.T) {
	n := NewManualNormalizer()
	ctx := context.Background()
	for _, text := range []string{
		"galletas de chocolate 360 G",
		"Gaseosa cola 1,5 L",
		"ACEITE girasol 900ml",
		"queso crema light 290 g pote",
		"Café tostado 250g",
	} {
		first, err := n.Normalize(ctx, RawProduct{Text: text, Brand: "marca  x", Category: "almacén"})
		require.NoError(t, err)
		second, err := n.Normalize(ctx, RawProduct{Text: first.VariantName, Brand: first.Brand, Category: first.Category})
		require.NoError(t, err)
		require.Equal(t, first, second, text)
	}
}

func TestAINormalizerDeclinesWithoutCredentials(t *testing.T) {
	n := NewAINormalizer(AIConfig{Endpoint: "http://example.invalid"})
	require.False(t, n.CanHandle(RawProduct{Text: "cola"}))

	n = NewAINormalizer(AIConfig{APIKey: "k", Endpoint: "http://example.invalid"})
	require.False(t, n.CanHandle(RawProduct{}))
	require.True(t, n.CanHandle(RawProduct{Text: "cola"}))
	require.Equal(t, 100, n.Priority())
}

func TestAINormalizerCallsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req extractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input != "FizzCo cola zero 2 l" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(NormalizedProduct{
			Brand:       "FizzCo",
			BaseName:    "Cola",
			VariantName: "Cola Zero 2l",
			Details:     Details{Type: "Zero", Size: "2l", Unit: "l"},
		})
	}))
	defer srv.Close()

	n := NewAINormalizer(AIConfig{APIKey: "secret", Endpoint: srv.URL, Model: "m"})
	got, err := n.Normalize(context.Background(), RawProduct{Text: "cola zero 2 l", Brand: "FizzCo", Category: "bebidas"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Cola", got.BaseName)
	require.Equal(t, "Bebidas", got.Category)
	require.Equal(t, "ai", got.Normalizer)

	bad := NewAINormalizer(AIConfig{APIKey: "wrong", Endpoint: srv.URL})
	_, err = bad.Normalize(context.Background(), RawProduct{Text: "cola zero 2 l", Brand: "FizzCo"})
	require.Error(t, err)

	c := NewChain(nil, NewManualNormalizer(), bad)
	fallback := c.Normalize(context.Background(), RawProduct{Text: "cola zero 2 l", Brand: "FizzCo"})
	require.NotNil(t, fallback)
	require.Equal(t, "manual", fallback.Normalizer)
}
