package strategy_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/strategy"
	"github.com/stretchr/testify/require"
)

func TestFormDiscoveryStrategy_Discover_SubmitsFormAndExtractsPDFs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<form action="/results" method="get">
  <input type="text" name="q" value="ruling" />
</form>
</body></html>`))
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `results: https://example.com/ruling_2020.pdf`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := strategy.NewFormDiscoveryStrategy(strategy.FormDiscoveryConfig{
		EnabledFlag:     true,
		SeedPages:       []string{server.URL + "/search"},
		MaxCombinations: 10,
	})

	require.True(t, s.Enabled())
	result, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Seeds, 1)
	require.Equal(t, "https://example.com/ruling_2020.pdf", result.Seeds[0].URL)
}

func TestFormDiscoveryStrategy_Enabled_RequiresSeedPages(t *testing.T) {
	s := strategy.NewFormDiscoveryStrategy(strategy.FormDiscoveryConfig{EnabledFlag: true})
	require.False(t, s.Enabled())
}
