package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/auth"
	"checkout-engine/internal/callback"
	"checkout-engine/internal/idempotency"
	"checkout-engine/internal/models"
	"checkout-engine/internal/service"
	"checkout-engine/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	providerIP     = "196.201.214.200"
	callbackSecret = "callback-secret"
)

type stubProvider struct{ n atomic.Int32 }

func (p *stubProvider) RequestPayment(context.Context, models.PaymentRequest) (*models.PaymentInitiation, error) {
	return &models.PaymentInitiation{
		ProviderRequestID: fmt.Sprintf("ws_CO_%d", p.n.Add(1)),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderEvent(context.Context, *models.OrderEventMessage) error { return nil }
func (nopPublisher) PublishFulfilmentReady(context.Context, *models.FulfilmentReadyEvent) error {
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.NotificationEvent) {}

type memQueue struct {
	mu     sync.Mutex
	err    error
	events []*models.PaymentCallbackEvent
}

func (q *memQueue) Enqueue(_ context.Context, event *models.PaymentCallbackEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, event)
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router   *gin.Engine
	repo     *store.MemoryRepository
	jwt      *auth.JWTService
	queue    *memQueue
	pipeline *callback.Pipeline
	verifier *callback.Verifier
	handler  *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := store.NewMemoryRepository()
	repo.AddProduct(models.Product{ID: 1, SKU: "W-1", Name: "Widget", Price: 500, Active: true}, 5, 1)
	repo.AddProduct(models.Product{ID: 2, SKU: "N-1", Name: "New", Price: 100, Active: true}, 0, 0)

	ledger := service.NewInventoryLedger(repo)
	svc := service.NewOrderService(repo, repo, ledger, &stubProvider{}, nopPublisher{}, nopNotifier{})

	origins, err := callback.NewOriginPolicy([]string{providerIP})
	require.NoError(t, err)
	verifier := callback.NewVerifier(callbackSecret)
	queue := &memQueue{}
	pipeline := callback.NewPipeline(origins, verifier, idempotency.NewMemoryStore(), svc, queue,
		callback.Options{RetryBackoff: time.Millisecond})

	jwtService := auth.NewJWTService("test-secret", time.Hour)
	h := NewHandler(svc, ledger, pipeline, jwtService, Options{DefaultLowStockThreshold: 3})

	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{
		router:   router,
		repo:     repo,
		jwt:      jwtService,
		queue:    queue,
		pipeline: pipeline,
		verifier: verifier,
		handler:  h,
	}
}

func (s *testServer) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, _, err := s.jwt.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postCallback(t *testing.T, path, remote string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.RemoteAddr = remote + ":443"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(callback.DefaultSignatureHeader, signature)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) checkout(t *testing.T, token string, qty int, key string) service.CheckoutResponse {
	t.Helper()

	headers := map[string]string{}
	if key != "" {
		headers["Idempotency-Key"] = key
	}
	w := s.do(t, http.MethodPost, "/api/v1/checkout", token, gin.H{
		"items":        []gin.H{{"product_id": 1, "quantity": qty}},
		"phone_number": "254712345678",
	}, headers)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())

	var resp service.CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("postgres", pinger{})
	w = s.do(t, http.MethodGet, "/ready", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.handler.AddReadinessCheck("redis", pinger{err: errors.New("connection refused")})
	w = s.do(t, http.MethodGet, "/ready", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", decode(t, w)["status"])
}

func TestCheckout_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/checkout", "", gin.H{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckout_CreatesPendingOrder(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7, auth.RoleCustomer)

	resp := s.checkout(t, token, 2, "")
	assert.Equal(t, models.OrderStatusPending, resp.Status)
	assert.Equal(t, int64(1000), resp.TotalAmount)
	assert.NotEmpty(t, resp.ProviderRequestID)

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", resp.OrderID), token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", decode(t, w)["status"])

	other := s.token(t, 8, auth.RoleCustomer)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", resp.OrderID), other, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_IdempotencyKeyReturnsSameOrder(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7, auth.RoleCustomer)

	first := s.checkout(t, token, 1, "key-1")
	second := s.checkout(t, token, 1, "key-1")

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.True(t, second.Duplicate)

	rec, err := s.repo.GetInventory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ReservedQuantity)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7, auth.RoleCustomer)

	w := s.do(t, http.MethodPost, "/api/v1/checkout", token, gin.H{
		"items":        []gin.H{{"product_id": 1, "quantity": 6}},
		"phone_number": "254712345678",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_stock", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/checkout", token, gin.H{
		"items":        []gin.H{{"product_id": 1, "quantity": 1}},
		"phone_number": "call-me",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/v1/checkout", token, gin.H{"items": []gin.H{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentCallback_ConfirmsOrder(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7, auth.RoleCustomer)
	resp := s.checkout(t, token, 2, "")

	body := []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":"RCP1"}]}}}}`,
		resp.ProviderRequestID, resp.TotalAmount))

	w := s.postCallback(t, "/api/v1/payments/callback", providerIP, body, s.verifier.Sign(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["ResultCode"])

	require.Len(t, s.queue.events, 1)
	require.NoError(t, s.pipeline.Process(context.Background(), s.queue.events[0]))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", resp.OrderID), token, nil, nil)
	assert.Equal(t, "CONFIRMED", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/payment", resp.OrderID), token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESSFUL", decode(t, w)["status"])
}

func TestPaymentCallback_RejectionsGetGenericAck(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032}}}`)

	w := s.postCallback(t, "/api/v1/payments/callback", "10.1.2.3", body, s.verifier.Sign(body))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.postCallback(t, "/api/v1/payments/timeout", providerIP, body, "deadbeef")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, s.queue.events)
}

func TestPaymentCallback_QueueUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.queue.err = apperr.ErrRetryable
	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032}}}`)

	w := s.postCallback(t, "/api/v1/payments/callback", providerIP, body, s.verifier.Sign(body))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPaymentCallback_OversizedBodyNotQueued(t *testing.T) {
	s := newTestServer(t)
	body := []byte(fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":%q}}}`,
		strings.Repeat("x", maxCallbackBody)))

	w := s.postCallback(t, "/api/v1/payments/callback", providerIP, body, s.verifier.Sign(body))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["ResultCode"])
	assert.Empty(t, s.queue.events)
}

func TestCustomerCancel(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, 7, auth.RoleCustomer)
	resp := s.checkout(t, token, 2, "")

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", resp.OrderID), token, gin.H{"reason": "changed my mind"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	rec, err := s.repo.GetInventory(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ReservedQuantity)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", resp.OrderID), token, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	customer := s.token(t, 7, auth.RoleCustomer)

	w := s.do(t, http.MethodGet, "/api/v1/admin/inventory/1", customer, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminInventory(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, 1, auth.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/admin/inventory/1/restock", admin, gin.H{"quantity": 5}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), decode(t, w)["total_quantity"])

	w = s.do(t, http.MethodPost, "/api/v1/admin/inventory/1/restock", admin, gin.H{"quantity": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/inventory/1", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/inventory/99", admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminOrderLifecycle(t *testing.T) {
	s := newTestServer(t)
	customer := s.token(t, 7, auth.RoleCustomer)
	admin := s.token(t, 1, auth.RoleAdmin)

	resp := s.checkout(t, customer, 1, "")
	base := fmt.Sprintf("/api/v1/admin/orders/%d", resp.OrderID)

	w := s.do(t, http.MethodPost, base+"/status", admin, gin.H{"status": "SHIPPED"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode(t, w)["code"])

	w = s.do(t, http.MethodDelete, base, admin, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, base+"/cancel", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	w = s.do(t, http.MethodDelete, base, admin, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, base, admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
