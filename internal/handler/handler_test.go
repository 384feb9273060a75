package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devmainman/kurosadmin/internal/api"
	"github.com/Devmainman/kurosadmin/internal/cache"
	"github.com/Devmainman/kurosadmin/internal/config"
	"github.com/Devmainman/kurosadmin/internal/credential"
	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/guard"
	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/notify"
	"github.com/Devmainman/kurosadmin/internal/resource"
	"github.com/Devmainman/kurosadmin/internal/session"
	"github.com/Devmainman/kurosadmin/pkg/health"
	"github.com/Devmainman/kurosadmin/pkg/httpclient"
	"github.com/Devmainman/kurosadmin/pkg/logger"
)

const liveToken = "tok-live"

// --- Fake admin API ---

type adminAPI struct {
	mu    sync.Mutex
	posts map[string]domain.BlogPost

	revoked   atomic.Bool
	blogLists atomic.Int32
}

func newAdminAPI() *adminAPI {
	return &adminAPI{posts: map[string]domain.BlogPost{
		"p1": {ID: "p1", Title: "Launch notes", Slug: "launch-notes", Content: "We shipped."},
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *adminAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if a.revoked.Load() || r.Header.Get("Authorization") != "Bearer "+liveToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
		return false
	}
	return true
}

func (a *adminAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "correct-horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": liveToken,
			"user":  map[string]string{"_id": "u1", "email": creds.Email, "role": "admin"},
		})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("PUT /api/auth/reset-password/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "reset-ok" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Reset link is invalid or has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if a.authorized(w, r) {
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]string{"_id": "u1"}})
		}
	})
	mux.HandleFunc("GET /api/blog", func(w http.ResponseWriter, r *http.Request) {
		if !a.authorized(w, r) {
			return
		}
		a.blogLists.Add(1)
		a.mu.Lock()
		list := make([]domain.BlogPost, 0, len(a.posts))
		for _, p := range a.posts {
			list = append(list, p)
		}
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": list})
	})
	mux.HandleFunc("GET /api/blog/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !a.authorized(w, r) {
			return
		}
		a.mu.Lock()
		p, ok := a.posts[r.PathValue("id")]
		a.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Blog post not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
	})
	mux.HandleFunc("PUT /api/blog/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !a.authorized(w, r) {
			return
		}
		var p domain.BlogPost
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = r.PathValue("id")
		a.mu.Lock()
		a.posts[p.ID] = p
		a.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
	})
	return mux
}

// --- Fixture ---

type fixture struct {
	api    *adminAPI
	router http.Handler
	ctrl   *session.Controller
	cache  *cache.Cache
	tokens *credential.MemoryStore
	feed   *notify.Feed
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()

	admin := newAdminAPI()
	srv := httptest.NewServer(admin.handler())
	t.Cleanup(srv.Close)

	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("handler-test-"+t.Name()),
		log,
	).WithFallback(api.CircuitOpenFallback)

	tokens := credential.NewMemoryStore()
	client := api.NewClient(api.Config{BaseURL: srv.URL + "/api"}, doer, tokens, log)
	registry := api.NewRegistry(client)

	feed := notify.NewFeed(50)
	bus := notify.NewBus(log, feed)

	c := cache.New(registry, bus, cache.Config{RetryDelay: time.Millisecond}, log)
	t.Cleanup(c.Close)

	ctrl := session.NewController(client, tokens, c, bus, session.Config{TwoFactorTTL: time.Minute}, log)
	client.OnUnauthorized(ctrl.ForceExpire)
	ctrl.Bootstrap(context.Background())

	cfg := &config.Config{
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		GuardHoldTimeout:    time.Second,
		CORSAllowedOrigins:  []string{"http://localhost:5173"},
		MetricsAllowedCIDRs: []string{"127.0.0.0/8"},
	}
	router := NewRouter(cfg, Deps{
		Session:   ctrl,
		Passwords: client,
		Guard:     guard.New(ctrl, log),
		Cache:     c,
		Mutator:   mutation.NewCoordinator(registry, c, bus, log),
		Actions:   registry,
		Feed:      feed,
		Notifier:  bus,
		Health:    health.NewHandler(),
	}, log)

	return &fixture{api: admin, router: router, ctrl: ctrl, cache: c, tokens: tokens, feed: feed}
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Redirect string          `json:"redirect"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type entryBody struct {
	Data   json.RawMessage `json:"data"`
	Status cache.Status    `json:"status"`
	Stale  bool            `json:"stale"`
	Error  string          `json:"error"`
}

func (f *fixture) serve(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := f.serve(method, target, body)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/login", `{"email":"admin@kuros.io","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, session.RouteDashboard, env.Redirect)
}

func decodeEntry(t *testing.T, env envelope) entryBody {
	t.Helper()
	var e entryBody
	require.NoError(t, json.Unmarshal(env.Data, &e))
	return e
}

func countKind(notices []notify.Notice, kind notify.Kind) int {
	n := 0
	for _, notice := range notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}

// --- Tests ---

func TestProtectedView_AnonymousIsRefused(t *testing.T) {
	f := setup(t)

	rec, env := f.do(t, http.MethodGet, "/views/blog", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	assert.Equal(t, session.RouteLogin, env.Redirect)
	assert.Zero(t, f.api.blogLists.Load())
}

func TestProtectedView_BrowserIsRedirected(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/views/blog", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, session.RouteLogin, rec.Header().Get("Location"))
}

func TestLogin_WrongPasswordKeepsSessionAnonymous(t *testing.T) {
	f := setup(t)

	rec, env := f.do(t, http.MethodPost, "/login", `{"email":"admin@kuros.io","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Invalid credentials", env.Error.Message)
	assert.Equal(t, session.StateAnonymous, f.ctrl.Snapshot().State)
}

func TestLogin_InvalidEmailIsRejectedInline(t *testing.T) {
	f := setup(t)

	rec, _ := f.do(t, http.MethodPost, "/login", `{"email":"not-an-email","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginThenBrowse(t *testing.T) {
	f := setup(t)
	f.login(t)

	_, env := f.do(t, http.MethodGet, "/session", "")
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.NotContains(t, string(env.Data), liveToken)

	rec, env := f.do(t, http.MethodGet, "/views/blog", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decodeEntry(t, env)
	assert.Equal(t, cache.StatusReady, entry.Status)

	var posts []domain.BlogPost
	require.NoError(t, json.Unmarshal(entry.Data, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Launch notes", posts[0].Title)

	// A second read within the staleness window is served from the cache.
	f.do(t, http.MethodGet, "/views/blog?page=1", "")
	assert.Equal(t, int32(1), f.api.blogLists.Load())
}

func TestUnknownResourceType(t *testing.T) {
	f := setup(t)
	f.login(t)

	rec, _ := f.do(t, http.MethodGet, "/views/widgets", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdate_RefreshesListOnNextRead(t *testing.T) {
	f := setup(t)
	f.login(t)

	f.do(t, http.MethodGet, "/views/blog", "")
	require.Equal(t, int32(1), f.api.blogLists.Load())

	rec, env := f.do(t, http.MethodPut, "/views/blog/p1", `{"title":"Launch notes v2","content":"We shipped again."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/blog", env.Redirect)

	last, ok := f.feed.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindSuccess, last.Kind)
	assert.Equal(t, "Blog post updated successfully", last.Message)

	assert.True(t, f.cache.Peek(collectionKey(resource.Blog, url.Values{})).Stale)

	_, env = f.do(t, http.MethodGet, "/views/blog", "")
	var posts []domain.BlogPost
	require.NoError(t, json.Unmarshal(decodeEntry(t, env).Data, &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "Launch notes v2", posts[0].Title)
	assert.Equal(t, "launch-notes-v2", posts[0].Slug)
	assert.Equal(t, int32(2), f.api.blogLists.Load())
}

func TestUpdate_InvalidPayloadIsRejectedWithoutNotice(t *testing.T) {
	f := setup(t)
	f.login(t)
	before := len(f.feed.Recent())

	rec, env := f.do(t, http.MethodPut, "/views/blog/p1", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Len(t, f.feed.Recent(), before)
}

func TestExpiredToken_EndsSessionOnce(t *testing.T) {
	f := setup(t)
	f.login(t)

	listKey := collectionKey(resource.Blog, url.Values{})
	f.do(t, http.MethodGet, "/views/blog", "")
	require.NotNil(t, f.cache.Peek(listKey).Data)

	f.api.revoked.Store(true)

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = f.serve(http.MethodGet, "/views/blog/p1", "").Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusUnauthorized, code)
	}

	snap := f.ctrl.Snapshot()
	assert.Equal(t, session.StateAnonymous, snap.State)
	assert.Equal(t, session.ReasonExpired, snap.Reason)

	_, ok := f.tokens.Load(context.Background())
	assert.False(t, ok, "token must be cleared")
	assert.Nil(t, f.cache.Peek(listKey).Data, "cached data must be cleared")

	notices := f.feed.Recent()
	assert.Equal(t, 1, countKind(notices, notify.KindExpired))
	assert.Zero(t, countKind(notices, notify.KindFailure))

	rec, env := f.do(t, http.MethodGet, "/views/blog", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_EXPIRED", env.Error.Code)
	assert.Equal(t, api.ExpiredMessage, env.Error.Message)
	assert.Equal(t, session.RouteLogin+"?reason=expired", env.Redirect)
}

func TestExpiredToken_DuringWrite(t *testing.T) {
	f := setup(t)
	f.login(t)
	f.api.revoked.Store(true)

	rec, env := f.do(t, http.MethodPut, "/views/blog/p1", `{"title":"Late edit","content":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, session.RouteLogin+"?reason=expired", env.Redirect)

	notices := f.feed.Recent()
	assert.Equal(t, 1, countKind(notices, notify.KindExpired))
	assert.Zero(t, countKind(notices, notify.KindFailure))
}

func TestLogout(t *testing.T) {
	f := setup(t)
	f.login(t)

	rec, env := f.do(t, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.RouteLogin, env.Redirect)
	assert.Equal(t, session.ReasonLogout, f.ctrl.Snapshot().Reason)

	rec, env = f.do(t, http.MethodGet, "/views/blog", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, session.RouteLogin, env.Redirect)
}

func TestNotifications(t *testing.T) {
	f := setup(t)
	f.login(t)

	_, env := f.do(t, http.MethodGet, "/notifications", "")
	var notices []notify.Notice
	require.NoError(t, json.Unmarshal(env.Data, &notices))
	require.NotEmpty(t, notices)
	assert.Equal(t, "Login successful!", notices[len(notices)-1].Message)
}

func TestPasswordFlow_PublishesNotices(t *testing.T) {
	f := setup(t)

	rec, _ := f.do(t, http.MethodPost, "/forgot-password", `{"email":"admin@kuros.io"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	last, ok := f.feed.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindSuccess, last.Kind)
	assert.Equal(t, msgResetLinkSent, last.Message)

	rec, env := f.do(t, http.MethodPut, "/reset-password/reset-ok", `{"password":"a-new-passphrase"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/login", env.Redirect)
	last, _ = f.feed.Last()
	assert.Equal(t, msgPasswordReset, last.Message)

	rec, _ = f.do(t, http.MethodPut, "/reset-password/reset-gone", `{"password":"a-new-passphrase"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	last, _ = f.feed.Last()
	assert.Equal(t, notify.KindFailure, last.Kind)
	assert.Equal(t, "Reset link is invalid or has expired", last.Message)

	before := len(f.feed.Recent())
	rec, _ = f.do(t, http.MethodPut, "/reset-password/reset-ok", `{"password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.feed.Recent(), before, "an invalid form is answered inline")
	assert.Equal(t, session.StateAnonymous, f.ctrl.Snapshot().State)
}

// --- Streams ---

type event struct {
	name string
	data string
}

func readEvents(t *testing.T, ctx context.Context, target string) <-chan event {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	out := make(chan event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		var ev event
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "":
				out <- ev
				ev = event{}
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan event, match func(event) bool) event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSessionEvents_StreamTransitions(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := readEvents(t, ctx, srv.URL+"/session/events")

	first := nextEvent(t, events, func(event) bool { return true })
	assert.Equal(t, "session", first.name)
	assert.Contains(t, first.data, `"state":"anonymous"`)

	f.login(t)
	nextEvent(t, events, func(ev event) bool {
		return strings.Contains(ev.data, `"state":"authenticated"`)
	})
}

func TestWatch_PushesRefetchAfterUpdate(t *testing.T) {
	f := setup(t)
	f.login(t)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := readEvents(t, ctx, srv.URL+"/watch/blog")

	nextEvent(t, events, func(ev event) bool {
		return strings.Contains(ev.data, `"status":"ready"`) && strings.Contains(ev.data, "Launch notes")
	})

	rec, _ := f.do(t, http.MethodPut, "/views/blog/p1", `{"title":"Pushed title","content":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	nextEvent(t, events, func(ev event) bool {
		return strings.Contains(ev.data, `"status":"ready"`) && strings.Contains(ev.data, "Pushed title")
	})
}
