package storage_test

import (
	"testing"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/storage"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:", metadata.NoopSink{})
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_UpsertLink_InsertsOnFirstCall(t *testing.T) {
	store := openTestStore(t)

	result, err := store.UpsertLink(storage.PDFLink{
		OriginalURL:      "https://example.com/x.pdf?utm=1",
		NormalizedURL:    "https://example.com/x.pdf",
		SourceURL:        "https://example.com/",
		SessionID:        "s1",
		Status:           storage.LinkDiscovered,
		ExtractionMethod: storage.ExtractionCSSSelector,
		Confidence:       0.9,
	})

	require.Nil(t, err)
	require.False(t, result.Existed)
	require.NotZero(t, result.Link.ID)
}

func TestStore_UpsertLink_UpdatesInPlaceOnDuplicateNormalizedURL(t *testing.T) {
	store := openTestStore(t)

	first, err := store.UpsertLink(storage.PDFLink{
		NormalizedURL:    "https://example.com/x.pdf",
		SessionID:        "s1",
		Status:           storage.LinkDiscovered,
		ExtractionMethod: storage.ExtractionCSSSelector,
	})
	require.Nil(t, err)

	second, err := store.UpsertLink(storage.PDFLink{
		NormalizedURL:    "https://example.com/x.pdf",
		SessionID:        "s1",
		Status:           storage.LinkAccessible,
		HTTPStatus:       200,
		ExtractionMethod: storage.ExtractionRegexFallback,
	})
	require.Nil(t, err)

	require.True(t, second.Existed)
	require.Equal(t, first.Link.ID, second.Link.ID)

	stored, found, err := store.GetLinkByNormalizedURL("https://example.com/x.pdf")
	require.Nil(t, err)
	require.True(t, found)
	require.Equal(t, storage.LinkAccessible, stored.Status)
	require.Equal(t, 200, stored.HTTPStatus)

	count, err := store.CountDistinctNormalizedURLs()
	require.Nil(t, err)
	require.Equal(t, 1, count)
}

func TestStore_UpsertLink_DistinctNormalizedURLsAreSeparateRows(t *testing.T) {
	store := openTestStore(t)

	urls := []string{
		"https://example.com/a.pdf",
		"https://example.com/b.pdf",
		"https://example.com/c.pdf",
	}
	for _, u := range urls {
		_, err := store.UpsertLink(storage.PDFLink{
			NormalizedURL: u,
			SessionID:     "s1",
			Status:        storage.LinkDiscovered,
		})
		require.Nil(t, err)
	}

	count, err := store.CountDistinctNormalizedURLs()
	require.Nil(t, err)
	require.Equal(t, len(urls), count)
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := openTestStore(t)

	err := store.CreateSession(storage.DiscoverySession{
		ID:   "sess-1",
		Mode: storage.ModeDeep,
	})
	require.Nil(t, err)

	session, found, err := store.GetSession("sess-1")
	require.Nil(t, err)
	require.True(t, found)
	require.Equal(t, storage.SessionRunning, session.Status)

	err = store.UpdateSessionCounters("sess-1", metadata.CrawlStats{
		PagesVisited: 10,
		LinksFound:   4,
		NewLinks:     4,
	})
	require.Nil(t, err)

	err = store.FinalizeSession("sess-1", storage.SessionCompleted)
	require.Nil(t, err)

	session, found, err = store.GetSession("sess-1")
	require.Nil(t, err)
	require.True(t, found)
	require.Equal(t, storage.SessionCompleted, session.Status)
	require.Equal(t, 10, session.PagesVisited)
	require.False(t, session.EndTime.IsZero())
}

func TestStore_FinalizeSession_RejectsRunningAsTerminal(t *testing.T) {
	store := openTestStore(t)
	require.Nil(t, store.CreateSession(storage.DiscoverySession{ID: "sess-1"}))

	err := store.FinalizeSession("sess-1", storage.SessionRunning)
	require.NotNil(t, err)
}

func TestStore_ProxyRecord_UpsertAndListHealthy(t *testing.T) {
	store := openTestStore(t)

	require.Nil(t, store.UpsertProxyRecord(storage.ProxyRecord{
		Endpoint: "http://proxy1:8080",
		Protocol: "http",
		Healthy:  true,
		Score:    80,
	}))
	require.Nil(t, store.UpsertProxyRecord(storage.ProxyRecord{
		Endpoint: "http://proxy2:8080",
		Protocol: "http",
		Healthy:  false,
		Score:    5,
	}))

	proxies, err := store.ListHealthyProxies()
	require.Nil(t, err)
	require.Len(t, proxies, 1)
	require.Equal(t, "http://proxy1:8080", proxies[0].Endpoint)
}

func TestStore_ProxyRecord_UpsertOverwritesByEndpoint(t *testing.T) {
	store := openTestStore(t)

	require.Nil(t, store.UpsertProxyRecord(storage.ProxyRecord{
		Endpoint: "http://proxy1:8080",
		Healthy:  true,
		Score:    50,
	}))
	require.Nil(t, store.UpsertProxyRecord(storage.ProxyRecord{
		Endpoint: "http://proxy1:8080",
		Healthy:  true,
		Score:    90,
	}))

	proxies, err := store.ListHealthyProxies()
	require.Nil(t, err)
	require.Len(t, proxies, 1)
	require.Equal(t, 90.0, proxies[0].Score)
}

func TestStore_ListOriginalURLs_ReturnsEveryLink(t *testing.T) {
	store := openTestStore(t)

	_, err := store.UpsertLink(storage.PDFLink{
		OriginalURL:   "https://example.com/doc_001.pdf",
		NormalizedURL: "https://example.com/doc_001.pdf",
		SessionID:     "s1",
		Status:        storage.LinkDiscovered,
	})
	require.Nil(t, err)

	urls, err := store.ListOriginalURLs()
	require.Nil(t, err)
	require.Equal(t, []string{"https://example.com/doc_001.pdf"}, urls)
}
