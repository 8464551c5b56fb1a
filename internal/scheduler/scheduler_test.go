package scheduler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/checkpoint"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/config"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/scheduler"
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

// baseConfig builds a Config with every strategy and the proxy pool
// disabled, so a test session only ever talks to the httptest server it
// is given - no outbound strategy network calls, no proxy dialing.
func baseConfig(t *testing.T, seedURL string) config.Config {
	t.Helper()
	u, err := url.Parse(seedURL)
	require.NoError(t, err)

	cfg, err := config.WithDefault([]url.URL{*u}).
		WithMaxPages(50).
		WithBaseDelay(0).
		WithJitter(0).
		WithTimeout(5 * time.Second).
		WithOutputDir(t.TempDir()).
		WithDiscovery(config.DiscoveryConfig{
			Mode:                config.ModeFull,
			FollowInternalLinks: true,
			ValidateOnDiscovery: false,
			Deduplicate:         true,
		}).
		WithProxy(config.ProxyConfig{Enabled: false}).
		WithCaptcha(config.CaptchaConfig{AutoDetect: false}).
		Build()
	require.NoError(t, err)
	return cfg
}

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func drain(ch <-chan scheduler.DiscoveredPDF) []scheduler.DiscoveredPDF {
	var out []scheduler.DiscoveredPDF
	for pdf := range ch {
		out = append(out, pdf)
	}
	return out
}

func TestOrchestrator_Run_DiscoversLinkedPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(`<html><body><a href="/ruling.pdf">ruling</a></body></html>`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig(t, srv.URL+"/")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	out, err := o.Run(t.Context(), []url.URL{mustParse(t, srv.URL+"/")})
	require.NoError(t, err)

	pdfs := drain(out)
	require.Len(t, pdfs, 1)
	require.Equal(t, 0, pdfs[0].Depth) // depth of the seed page it was found on
	require.Equal(t, storage.ExtractionCSSSelector, pdfs[0].Link.ExtractionMethod)

	count, cerr := store.CountDistinctNormalizedURLs()
	require.Nil(t, cerr)
	require.Equal(t, 1, count)
}

func TestOrchestrator_Run_SeedThatIsAlreadyPDF_SkipsNavigation(t *testing.T) {
	cfg := baseConfig(t, "https://example.com/doc.pdf")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	out, err := o.Run(t.Context(), []url.URL{mustParse(t, "https://example.com/doc.pdf")})
	require.NoError(t, err)

	pdfs := drain(out)
	require.Len(t, pdfs, 1)
	require.Equal(t, 0, pdfs[0].Depth)
	require.Equal(t, storage.ExtractionSeed, pdfs[0].Link.ExtractionMethod)
}

func TestOrchestrator_Run_FinalizesSessionAsCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/done.pdf">doc</a></body></html>`))
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig(t, srv.URL+"/")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	out, err := o.Run(t.Context(), []url.URL{mustParse(t, srv.URL+"/")})
	require.NoError(t, err)
	pdfs := drain(out)
	require.Len(t, pdfs, 1)

	session, found, gerr := store.GetSession(pdfs[0].Link.SessionID)
	require.Nil(t, gerr)
	require.True(t, found)
	require.Equal(t, storage.SessionCompleted, session.Status)
	require.NotZero(t, session.PagesVisited)
}

func TestOrchestrator_Run_CancelledContext_InterruptsSession(t *testing.T) {
	cfg := baseConfig(t, "https://example.com/")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := o.Run(ctx, []url.URL{mustParse(t, "https://example.com/")})
	require.NoError(t, err)
	pdfs := drain(out)
	require.Empty(t, pdfs)
}

func TestOrchestrator_Resume_UnknownSession_Errors(t *testing.T) {
	cfg := baseConfig(t, "https://example.com/")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	_, err := o.Resume(t.Context(), "does-not-exist")
	require.Error(t, err)
}

func TestOrchestrator_Resume_DrainsCheckpointedQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/queued" {
			w.Write([]byte(`<html><body><a href="/from-resume.pdf">doc</a></body></html>`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := baseConfig(t, srv.URL+"/")
	store := openTestStore(t)
	o := scheduler.NewOrchestrator(cfg, store, metadata.NoopSink{})
	t.Cleanup(func() { o.Close() })

	sessionID := "resume-session"
	require.Nil(t, store.CreateSession(storage.DiscoverySession{
		ID:        sessionID,
		Mode:      storage.ModeFull,
		StartTime: time.Now(),
		Status:    storage.SessionInterrupted,
	}))

	// Hand-write a checkpoint with one URL still queued, as if a prior
	// process had been interrupted mid-crawl right after admitting it.
	cpStore := checkpoint.NewStore(cfg.OutputDir(), metadata.NoopSink{})
	require.Nil(t, cpStore.Save(checkpoint.Snapshot{
		SessionID: sessionID,
		Queue:     []checkpoint.QueuedURL{{URL: srv.URL + "/queued", Depth: 1}},
		Stats:     metadata.CrawlStats{SessionID: sessionID},
	}))

	out, rerr := o.Resume(t.Context(), sessionID)
	require.NoError(t, rerr)
	pdfs := drain(out)

	require.Len(t, pdfs, 1)
	require.Equal(t, 1, pdfs[0].Depth)

	session, found, gerr := store.GetSession(sessionID)
	require.Nil(t, gerr)
	require.True(t, found)
	require.Equal(t, storage.SessionCompleted, session.Status)
}
