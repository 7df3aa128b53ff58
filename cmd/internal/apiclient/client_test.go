package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"docqa/cmd/internal/auth/credstore"
)

// fakeBackend accepts exactly one access token and rotates it on refresh.
type fakeBackend struct {
	t *testing.T

	mu          sync.Mutex
	validAccess string
	nextPair    TokenResponse
	refreshCode int
	requestIDs  []string
	// pinned keeps validAccess unchanged across refreshes.
	pinned bool

	refreshCalls atomic.Int32
	askCalls     atomic.Int32
	refreshDelay time.Duration
}

func newFakeBackend(t *testing.T, validAccess string) *fakeBackend {
	return &fakeBackend{
		t:           t,
		validAccess: validAccess,
		nextPair:    TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", TokenType: "bearer"},
		refreshCode: http.StatusOK,
	}
}

func (b *fakeBackend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+b.validAccess
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/refresh":
		b.refreshCalls.Add(1)
		if r.Header.Get("Authorization") != "" {
			b.t.Errorf("refresh must not carry a bearer token")
		}
		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken == "" {
			b.t.Errorf("refresh body missing refresh_token")
		}
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}

		b.mu.Lock()
		code := b.refreshCode
		pair := b.nextPair
		if code == http.StatusOK && !b.pinned {
			b.validAccess = pair.AccessToken
		}
		b.mu.Unlock()

		if code != http.StatusOK {
			writeJSON(w, code, map[string]any{"detail": "Invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, pair)

	case "/ask/":
		b.askCalls.Add(1)
		b.mu.Lock()
		b.requestIDs = append(b.requestIDs, r.Header.Get(RequestIDHeader))
		b.mu.Unlock()

		if !b.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Could not validate credentials"})
			return
		}
		var body askRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, AskResponse{Answer: "echo: " + body.Query})

	case "/auth/login":
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid email or password"})

	case "/admin/dashboard":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "database unavailable"})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	backend *fakeBackend
	store   *credstore.MemoryStore
	client  *Client
	metrics *Metrics
	reauths atomic.Int32
	lastErr atomic.Value
}

func newHarness(t *testing.T, backend *fakeBackend, pair credstore.Pair) *harness {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	h := &harness{backend: backend, store: credstore.NewMemoryStore()}
	ctx := context.Background()
	if pair.AccessToken != "" {
		require.NoError(t, h.store.Set(ctx, credstore.KeyAccessToken, pair.AccessToken))
	}
	if pair.RefreshToken != "" {
		require.NoError(t, h.store.Set(ctx, credstore.KeyRefreshToken, pair.RefreshToken))
	}

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	h.metrics = m

	c, err := New(srv.URL, h.store,
		WithMetrics(m),
		WithReauthHandler(func(err error) {
			h.reauths.Add(1)
			h.lastErr.Store(err)
		}),
	)
	require.NoError(t, err)
	h.client = c
	return h
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "localhost:8000", "ftp://example.com", "http://"} {
		_, err := New(raw, credstore.NewMemoryStore())
		require.ErrorIs(t, err, ErrInvalidBaseURL, "base url %q", raw)
	}
}

func TestDo_AttachesBearerAndSucceeds(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "access-1")
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	out, err := h.client.Ask(context.Background(), "what is in my pdf?")
	require.NoError(t, err)
	require.Equal(t, "echo: what is in my pdf?", out.Answer)
	require.EqualValues(t, 0, b.refreshCalls.Load())
}

func TestDo_RefreshesOnceAndRetries(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "not-yet")
	b.nextPair = TokenResponse{AccessToken: "access-fresh", RefreshToken: "refresh-2"}
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	out, err := h.client.Ask(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "echo: q", out.Answer)

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.EqualValues(t, 2, b.askCalls.Load())

	pair, err := credstore.LoadPair(context.Background(), h.store)
	require.NoError(t, err)
	require.Equal(t, credstore.Pair{AccessToken: "access-fresh", RefreshToken: "refresh-2"}, pair)

	b.mu.Lock()
	ids := append([]string(nil), b.requestIDs...)
	b.mu.Unlock()
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.Equal(t, ids[0], ids[1], "retry keeps the request id")

	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.refreshes.WithLabelValues(RefreshSuccess)))
}

func TestDo_ConcurrentUnauthorizedCoalesces(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "nobody-has-this")
	b.nextPair = TokenResponse{AccessToken: "access-fresh", RefreshToken: "refresh-2"}
	b.refreshDelay = 50 * time.Millisecond
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.client.Ask(context.Background(), "q")
			if err == nil && out.Answer != "echo: q" {
				err = errors.New("unexpected answer " + out.Answer)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, b.refreshCalls.Load(), "a burst of 401s must trigger exactly one refresh")
	require.EqualValues(t, 0, h.reauths.Load())

	access, err := credstore.AccessToken(context.Background(), h.store)
	require.NoError(t, err)
	require.Equal(t, "access-fresh", access)
}

func TestDo_RefreshDeniedClearsStoreAndReauths(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "nobody-has-this")
	b.refreshCode = http.StatusUnauthorized
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	_, err := h.client.Ask(context.Background(), "q")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrReauthRequired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "/auth/refresh", apiErr.Path, "caller sees the refresh failure")
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Invalid refresh token", apiErr.Detail)

	pair, lerr := credstore.LoadPair(context.Background(), h.store)
	require.NoError(t, lerr)
	require.Equal(t, credstore.Pair{}, pair)

	require.EqualValues(t, 1, h.reauths.Load())
	hookErr, _ := h.lastErr.Load().(error)
	require.True(t, IsStatus(hookErr, http.StatusUnauthorized))
	require.EqualValues(t, 1, b.askCalls.Load(), "no retry after a failed refresh")
}

func TestDo_ConcurrentRefreshDeniedReauthsOnce(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "nobody-has-this")
	b.refreshCode = http.StatusUnauthorized
	b.refreshDelay = 30 * time.Millisecond
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.client.Ask(context.Background(), "q")
			if err == nil {
				t.Errorf("expected failure")
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.EqualValues(t, 1, h.reauths.Load())
}

func TestDo_RefreshKeepsPairWrittenWhileInFlight(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusUnauthorized, http.StatusOK} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			b := newFakeBackend(t, "access-login")
			b.refreshCode = code
			b.pinned = true
			b.nextPair = TokenResponse{AccessToken: "access-rotated", RefreshToken: "refresh-rotated"}
			b.refreshDelay = 200 * time.Millisecond
			h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

			done := make(chan error, 1)
			go func() {
				_, err := h.client.Ask(ctx, "q")
				done <- err
			}()

			require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
			// A login lands while the refresh is still out.
			login := credstore.Pair{AccessToken: "access-login", RefreshToken: "refresh-login"}
			require.NoError(t, credstore.WritePair(ctx, h.store, login))

			require.NoError(t, <-done)

			pair, err := credstore.LoadPair(ctx, h.store)
			require.NoError(t, err)
			require.Equal(t, login, pair)
			require.EqualValues(t, 0, h.reauths.Load())
			require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.refreshes.WithLabelValues(RefreshSuperseded)))
		})
	}
}

func TestDo_RefreshAfterLogoutDoesNotRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := newFakeBackend(t, "nobody-has-this")
	b.refreshDelay = 200 * time.Millisecond
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	done := make(chan error, 1)
	go func() {
		_, err := h.client.Ask(ctx, "q")
		done <- err
	}()

	require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, credstore.ClearPair(ctx, h.store))

	err := <-done
	require.ErrorIs(t, err, ErrReauthRequired)
	require.ErrorIs(t, err, ErrSessionEnded)

	pair, lerr := credstore.LoadPair(ctx, h.store)
	require.NoError(t, lerr)
	require.Equal(t, credstore.Pair{}, pair)
	require.EqualValues(t, 0, h.reauths.Load())
}

func TestDo_NoRefreshTokenPropagatesOriginal(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "nobody-has-this")
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale"})

	_, err := h.client.Ask(context.Background(), "q")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrReauthRequired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "/ask/", apiErr.Path)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)

	require.EqualValues(t, 0, b.refreshCalls.Load())
	require.EqualValues(t, 0, h.reauths.Load())
}

func TestDo_SecondUnauthorizedIsNotRetried(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "nobody-has-this")
	b.pinned = true
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-stale", RefreshToken: "refresh-1"})

	_, err := h.client.Ask(context.Background(), "q")
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	require.NotErrorIs(t, err, ErrReauthRequired)
	require.EqualValues(t, 1, b.refreshCalls.Load())
	require.EqualValues(t, 2, b.askCalls.Load(), "exactly one retry")
	require.EqualValues(t, 0, h.reauths.Load())
}

func TestDo_AnonymousUnauthorizedNotRefreshed(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "access-1")
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := h.client.Login(context.Background(), "a@example.com", "wrong")
	require.True(t, IsStatus(err, http.StatusBadRequest))
	require.Equal(t, "Invalid email or password", Message(err, "Login failed"))
	require.EqualValues(t, 0, b.refreshCalls.Load())
}

func TestDo_ServerErrorPropagatesWithDetail(t *testing.T) {
	t.Parallel()

	b := newFakeBackend(t, "access-1")
	h := newHarness(t, b, credstore.Pair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := h.client.AdminDashboard(context.Background())
	require.True(t, IsStatus(err, http.StatusInternalServerError))
	require.Equal(t, "database unavailable", Message(err, "Failed to load dashboard"))
	require.EqualValues(t, 0, b.refreshCalls.Load())
	require.Equal(t, float64(1), testutil.ToFloat64(h.metrics.requests.WithLabelValues(http.MethodGet, "/admin/dashboard", "5xx")))
}

func TestDo_TransportErrorUsesFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, credstore.NewMemoryStore(), WithTimeout(2*time.Second))
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "q")
	require.Error(t, err)
	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
	require.Equal(t, "Something went wrong", Message(err, "Something went wrong"))
}

func TestDo_NoBearerWhenStoreEmpty(t *testing.T) {
	t.Parallel()

	var sawAuth atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		writeJSON(w, http.StatusOK, []UserResponse{{ID: 1, Name: "A", Email: "a@example.com", Role: RoleUser}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", credstore.NewMemoryStore())
	require.NoError(t, err)

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.False(t, sawAuth.Load())
}

func TestUploadDocument_Multipart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/" || r.Header.Get("Authorization") != "Bearer access-1" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "%PDF-1.4 hello" {
			t.Errorf("upload content = %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": 3, "filename": "`+hdr.Filename+`", "user_id": 7, "upload_date": "2025-03-01T10:20:30.123456"}`)
	}))
	t.Cleanup(srv.Close)

	store := credstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), credstore.KeyAccessToken, "access-1"))
	c, err := New(srv.URL, store)
	require.NoError(t, err)

	doc, err := c.UploadDocument(context.Background(), "/tmp/reports/q1.pdf", strings.NewReader("%PDF-1.4 hello"))
	require.NoError(t, err)
	require.EqualValues(t, 3, doc.ID)
	require.Equal(t, "q1.pdf", doc.Filename)
	require.EqualValues(t, 7, doc.UserID)
	require.Equal(t, time.Date(2025, 3, 1, 10, 20, 30, 123456000, time.UTC), doc.UploadDate.Time)
}
