package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"orderline/internal/config"
	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/media"
	"orderline/internal/metrics"
	"orderline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine engine.Engine
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, db.DriverSQLite))

	e := engine.New(conn, config.Default())
	ctx := context.Background()
	for _, a := range []struct {
		id   string
		role domain.Role
	}{
		{"admin-1", domain.RoleAdmin},
		{"cust-1", domain.RoleCustomer},
		{"cust-2", domain.RoleCustomer},
		{"ship-1", domain.RoleShipper},
		{"ship-2", domain.RoleShipper},
	} {
		require.NoError(t, e.Directory.Upsert(ctx, domain.Actor{ID: a.id, Name: "Actor " + a.id, Email: a.id + "@example.com"}))
		require.NoError(t, e.Directory.Grant(ctx, a.id, a.role))
	}

	cfg := Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	handler, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, Engine: e}
}

func bearer(t *testing.T, actorID string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actorID, nil, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func orderBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "tee-1", "name": "Classic Tee", "size": "M", "quantity": 2, "unit_price": "150000"},
		},
		"shipping_address": map[string]any{"name": "Ana Silva", "street": "1 Main St", "city": "Hanoi", "country": "VN"},
		"shipping_fee":     "30000",
	}
}

func (s *testServer) createOrder(t *testing.T, actorID string) domain.WorkItem {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/v0/orders", orderBody(), bearer(t, actorID))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[domain.WorkItem](t, data)
}

func (s *testServer) moveOrder(t *testing.T, id string, status domain.Status) domain.WorkItem {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/v0/orders/"+id+"/transitions", map[string]any{"status": status}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	return decode[domain.WorkItem](t, data)
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)

	res, data := srv.do(t, http.MethodGet, "/v0/orders", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthenticated", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodGet, "/v0/orders", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decode[errorEnvelope](t, data).Error.Code)

	expired, err := SignToken(testSecret, "cust-1", nil, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	res, _ = srv.do(t, http.MethodGet, "/v0/orders", nil, map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Legacy header is ignored unless enabled.
	res, _ = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Actor-Id": "cust-1"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLegacyActorHeader(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.Auth.AllowLegacyActorHeader = true })
	res, data := srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Actor-Id": "cust-1"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[MeResponse](t, data)
	assert.Equal(t, "cust-1", me.ID)
	assert.Equal(t, "legacy_header", me.Source)
	assert.Equal(t, []domain.Role{domain.RoleCustomer}, me.Roles)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	order := srv.createOrder(t, "cust-1")
	assert.Equal(t, domain.StatusPending, order.Status)
	payload, ok := order.Payload.(*domain.OrderPayload)
	require.True(t, ok)
	assert.Equal(t, "330000", payload.Total.String())

	srv.moveOrder(t, order.ID, domain.StatusProcessing)
	srv.moveOrder(t, order.ID, domain.StatusShipping)

	res, data := srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/claim", nil, bearer(t, "ship-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	claimed := decode[domain.WorkItem](t, data)
	require.NotNil(t, claimed.AssigneeID)
	assert.Equal(t, "ship-1", *claimed.AssigneeID)

	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/claim", nil, bearer(t, "ship-2"))
	require.Equal(t, http.StatusConflict, res.StatusCode)
	env := decode[errorEnvelope](t, data)
	assert.Equal(t, "already_assigned", env.Error.Code)
	assert.NotEmpty(t, env.Error.Message)

	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/release", nil, bearer(t, "ship-2"))
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "not_owner", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/shipping-proof",
		map[string]any{"url": "https://cdn.example.com/proof.jpg"}, bearer(t, "ship-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	shipped := decode[domain.WorkItem](t, data)
	assert.Equal(t, domain.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippingImageURL)

	res, data = srv.do(t, http.MethodGet, "/v0/orders/"+order.ID, nil, bearer(t, "cust-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	view := decode[domain.ItemView](t, data)
	assert.Equal(t, domain.StatusShipped, view.Status)
	require.NotNil(t, view.Assignee)
	assert.Equal(t, "ship-1", view.Assignee.ID)

	res, data = srv.do(t, http.MethodGet, "/v0/orders/"+order.ID+"/events", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evts := decode[EventsResponse](t, data).Events
	require.NotEmpty(t, evts)
	assert.Equal(t, order.ID, evts[0].ItemID)
}

func TestItemRoutesAreKindScoped(t *testing.T) {
	srv := newTestServer(t)
	order := srv.createOrder(t, "cust-1")

	res, data := srv.do(t, http.MethodGet, "/v0/quotes/"+order.ID, nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	res, _ = srv.do(t, http.MethodPost, "/v0/quotes/"+order.ID+"/claim", nil, bearer(t, "admin-1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = srv.do(t, http.MethodPost, "/v0/quotes/"+order.ID+"/transitions", map[string]any{"status": "reviewing"}, bearer(t, "admin-1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	order := srv.createOrder(t, "cust-1")

	// Domain validation carries the offending field.
	body := orderBody()
	body["items"] = []map[string]any{}
	res, data := srv.do(t, http.MethodPost, "/v0/orders", body, bearer(t, "cust-1"))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env := decode[errorEnvelope](t, data)
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, "items", env.Error.Details["field"])

	// Schema errors stay bad requests.
	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/transitions", map[string]any{}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "bad_request", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/transitions", map[string]any{"status": "delivered"}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusConflict, res.StatusCode)
	env = decode[errorEnvelope](t, data)
	assert.Equal(t, "illegal_transition", env.Error.Code)
	assert.Equal(t, "pending", env.Error.Details["from"])

	res, data = srv.do(t, http.MethodPost, "/v0/orders/"+order.ID+"/transitions", map[string]any{"status": "processing"}, bearer(t, "cust-1"))
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "forbidden", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodGet, "/v0/orders/"+order.ID, nil, bearer(t, "cust-2"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, _ = srv.do(t, http.MethodGet, "/v0/orders/missing", nil, bearer(t, "admin-1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListAndCounts(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		srv.createOrder(t, "cust-1")
	}
	srv.createOrder(t, "cust-2")

	res, data := srv.do(t, http.MethodGet, "/v0/orders?page_size=2", nil, bearer(t, "cust-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[domain.ItemPage](t, data)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasNextPage)
	for _, v := range page.Items {
		assert.Equal(t, "cust-1", v.OwnerUserID)
	}

	res, data = srv.do(t, http.MethodGet, "/v0/orders/counts", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	counts := decode[CountsResponse](t, data)
	assert.Equal(t, domain.KindOrder, counts.Kind)
	assert.Equal(t, 4, counts.Counts[domain.StatusPending])

	res, data = srv.do(t, http.MethodGet, "/v0/orders?status=lost", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "status", decode[errorEnvelope](t, data).Error.Details["field"])

	res, data = srv.do(t, http.MethodGet, "/v0/quotes", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, decode[domain.ItemPage](t, data).Total)
}

func TestQuoteOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Engine.Directory.Upsert(ctx, domain.Actor{ID: "des-1", Name: "Designer"}))
	require.NoError(t, srv.Engine.Directory.Grant(ctx, "des-1", domain.RoleDesigner))

	res, data := srv.do(t, http.MethodPost, "/v0/quotes", map[string]any{
		"customer_name":  "Ana Silva",
		"customer_email": "ana@example.com",
		"product_type":   "hoodie",
		"quantity":       50,
	}, bearer(t, "cust-1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	quote := decode[domain.WorkItem](t, data)
	_, ok := quote.Payload.(*domain.QuotePayload)
	require.True(t, ok)

	res, data = srv.do(t, http.MethodPost, "/v0/quotes/"+quote.ID+"/claim", nil, bearer(t, "des-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v0/quotes/"+quote.ID+"/transitions", map[string]any{"status": "reviewing"}, bearer(t, "des-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v0/quotes/"+quote.ID+"/transitions", map[string]any{
		"status":       "quoted",
		"quoted_price": "1200000",
		"price_breakdown": map[string]any{
			"base_price": "1000000",
			"setup_fee":  "200000",
		},
	}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	quoted := decode[domain.WorkItem](t, data)
	require.NotNil(t, quoted.QuotedPrice)
	assert.Equal(t, "1200000", quoted.QuotedPrice.String())
	assert.False(t, quoted.PriceMismatch)

	res, data = srv.do(t, http.MethodPut, "/v0/quotes/"+quote.ID+"/primary-design",
		map[string]any{"url": "https://cdn.example.com/design.png"}, bearer(t, "des-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v0/quotes/"+quote.ID+"/transitions", map[string]any{"status": "approved"}, bearer(t, "cust-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.StatusApproved, decode[domain.WorkItem](t, data).Status)
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t)

	res, data := srv.do(t, http.MethodPost, "/v0/actors/cust-1/api-keys", map[string]any{"name": "storefront"}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	key := decode[APIKeyResponse](t, data)
	require.NotEmpty(t, key.Key)
	assert.NotContains(t, string(data), "key_hash")

	res, data = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[MeResponse](t, data)
	assert.Equal(t, "cust-1", me.ID)
	assert.Equal(t, "api_key", me.Source)

	res, _ = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Api-Key": "ol_wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = srv.do(t, http.MethodPost, "/v0/actors/cust-1/api-keys", map[string]any{}, bearer(t, "cust-1"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestMintedTokenCarriesRoles(t *testing.T) {
	srv := newTestServer(t)

	res, data := srv.do(t, http.MethodPost, "/v0/actors/ship-1/tokens", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	tok := decode[TokenResponse](t, data)
	p, err := authenticateJWT(tok.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ship-1", p.ActorID)
	assert.Equal(t, []domain.Role{domain.RoleShipper}, p.Roles)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	res, data = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "jwt", decode[MeResponse](t, data).Source)

	res, _ = srv.do(t, http.MethodPost, "/v0/actors/ship-1/tokens", nil, bearer(t, "ship-1"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = srv.do(t, http.MethodPost, "/v0/actors/ghost/tokens", nil, bearer(t, "admin-1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestActorAdministration(t *testing.T) {
	srv := newTestServer(t)

	res, data := srv.do(t, http.MethodPut, "/v0/actors/des-9", map[string]any{
		"name":  "New Designer",
		"email": "des9@example.com",
		"roles": []string{"designer"},
	}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	saved := decode[domain.Actor](t, data)
	assert.Equal(t, []domain.Role{domain.RoleDesigner}, saved.Roles)

	res, data = srv.do(t, http.MethodPost, "/v0/actors/des-9/roles", map[string]any{"role": "shipper"}, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.ElementsMatch(t, []domain.Role{domain.RoleDesigner, domain.RoleShipper}, decode[domain.Actor](t, data).Roles)

	res, data = srv.do(t, http.MethodDelete, "/v0/actors/des-9/roles/designer", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, []domain.Role{domain.RoleShipper}, decode[domain.Actor](t, data).Roles)

	res, data = srv.do(t, http.MethodGet, "/v0/actors", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[ActorsResponse](t, data).Actors, 6)

	res, _ = srv.do(t, http.MethodGet, "/v0/actors", nil, bearer(t, "cust-1"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, "/v0/events?limit=5", nil, bearer(t, "admin-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RateLimit = RateLimit{RPS: 0.01, Burst: 2} })
	h := bearer(t, "cust-1")
	for i := 0; i < 2; i++ {
		res, _ := srv.do(t, http.MethodGet, "/v0/me", nil, h)
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	res, data := srv.do(t, http.MethodGet, "/v0/me", nil, h)
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "rate_limited", decode[errorEnvelope](t, data).Error.Code)
	assert.NotEmpty(t, res.Header.Get("Retry-After"))

	// Buckets are per actor.
	res, _ = srv.do(t, http.MethodGet, "/v0/me", nil, bearer(t, "cust-2"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimitBucketIsShared(t *testing.T) {
	l := newRateLimiter("/v0", RateLimit{RPS: 0.01, Burst: 2})
	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		seen    = map[*rate.Limiter]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := l.bucket("actor:cust-1")
			ok := b.Allow()
			mu.Lock()
			defer mu.Unlock()
			seen[b] = true
			if ok {
				allowed++
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1)
	assert.Equal(t, 2, allowed)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func (s *testServer) upload(t *testing.T, headers map[string]string, prefix string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if prefix != "" {
		require.NoError(t, mw.WriteField("prefix", prefix))
	}
	fw, err := mw.CreateFormFile("file", "proof.png")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/v0/uploads", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func TestUploadToLocalStore(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, func(c *Config) {
		c.Media = media.LocalStore{Dir: dir, BaseURL: "http://cdn.test/media"}
		c.MediaDir = dir
	})

	res, data := srv.upload(t, bearer(t, "ship-1"), "proofs", pngHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	up := decode[UploadResponse](t, data)
	assert.Equal(t, "image/png", up.ContentType)
	assert.True(t, strings.HasPrefix(up.Key, "proofs/"))
	assert.Equal(t, "http://cdn.test/media/"+up.Key, up.URL)
	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(up.Key)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)

	res, served := srv.do(t, http.MethodGet, "/media/"+up.Key, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, pngHeader, served)

	res, data = srv.upload(t, bearer(t, "ship-1"), "", []byte("plain text is not an image"))
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "file", decode[errorEnvelope](t, data).Error.Details["field"])

	res, _ = srv.upload(t, nil, "", pngHeader)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestUploadsDisabledWithoutStore(t *testing.T) {
	srv := newTestServer(t)
	res, _ := srv.upload(t, bearer(t, "ship-1"), "", pngHeader)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, func(c *Config) { c.Metrics = m })
	srv.do(t, http.MethodGet, "/v0/health", nil, nil)

	res, data := srv.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "orderline_http_request_duration_seconds")
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)

	const n = 8
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Equal(t, bodies[0], bodies[i])
	}
	require.NotEmpty(t, bodies[0])

	res, data := srv.do(t, http.MethodGet, "/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode[map[string]any](t, data)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/v0/orders", "/v0/quotes/{id}/claim", "/v0/orders/{id}/shipping-proof", "/v0/actors/{id}/tokens"} {
		assert.Contains(t, paths, p)
	}
	assert.Contains(t, string(data), "bearerAuth")

	res, data = srv.do(t, http.MethodGet, "/docs", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/openapi.json")
}
