package giftcards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

type handlerFixture struct {
	router   *gin.Engine
	sessions *memSessions
	orders   *memOrders
	ledger   *mockLedger
	legacy   *mockLegacyStore
	queue    *memQueue
}

func newHandlerFixture() *handlerFixture {
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		sessions: newMemSessions(),
		orders:   newMemOrders(),
		ledger:   new(mockLedger),
		legacy:   new(mockLegacyStore),
		queue:    &memQueue{},
	}
	settings := testSettings()
	manager := NewManager(f.sessions, f.orders)
	handler := NewHandler(
		NewCartService(manager, f.ledger),
		NewOrderService(manager, f.ledger, f.orders, settings),
		NewRefundService(manager, f.ledger, f.orders, settings),
		NewReadService(manager),
		NewMigrator(f.legacy, f.orders, f.ledger, f.queue, settings),
	)

	f.router = gin.New()
	handler.RegisterRoutes(f.router, testJWTSecret)
	return f
}

func (f *handlerFixture) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func session(id string) map[string]string {
	return map[string]string{SessionHeader: id}
}

func adminToken(t *testing.T, role string) map[string]string {
	t.Helper()
	claims := middleware.Claims{
		UserID: uuid.New().String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + signed}
}

func parseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return response
}

func errorMessage(response map[string]interface{}) string {
	errInfo, _ := response["error"].(map[string]interface{})
	message, _ := errInfo["message"].(string)
	return message
}

// ============================================================================
// Cart
// ============================================================================

func TestHandler_ApplyCode_Success(t *testing.T) {
	f := newHandlerFixture()
	f.ledger.On("GetCard", mock.Anything, "ABCD1234EFGH5678").Return(ledgerCard("gc_1", 2500), nil)

	w := f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "abcd-1234-efgh-5678"}, session("s1"))

	assert.Equal(t, http.StatusCreated, w.Code)
	response := parseResponse(w)
	assert.True(t, response["success"].(bool))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "gc_1", data["id"])
	assert.Equal(t, "XXXX - XXXX - XXXX - 5678", data["masked_code"])
	assert.NotContains(t, w.Body.String(), "ABCD1234EFGH5678")
}

func TestHandler_ApplyCode_MissingSession(t *testing.T) {
	f := newHandlerFixture()

	w := f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "ABCD1234"}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing session id", errorMessage(parseResponse(w)))
}

func TestHandler_ApplyCode_InvalidBody(t *testing.T) {
	f := newHandlerFixture()

	w := f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "!!"}, session("s1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.ledger.AssertNotCalled(t, "GetCard", mock.Anything, mock.Anything)
}

func TestHandler_ApplyCode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		ledgerErr  error
		card       *LedgerCard
		lang       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "unknown card",
			ledgerErr:  ErrCardNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "This gift card does not exist",
		},
		{
			name:       "unknown card in dutch",
			ledgerErr:  ErrCardNotFound,
			lang:       "nl-NL,nl;q=0.9",
			wantStatus: http.StatusNotFound,
			wantMsg:    "Deze cadeaukaart bestaat niet",
		},
		{
			name:       "empty card",
			card:       ledgerCard("gc_1", 0),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "This gift card has no available balance",
		},
		{
			name:       "ledger down",
			ledgerErr:  errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Gift cards are temporarily unavailable, please try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.ledger.On("GetCard", mock.Anything, "ABCD1234").Return(tt.card, tt.ledgerErr)

			headers := session("s1")
			if tt.lang != "" {
				headers["Accept-Language"] = tt.lang
			}
			w := f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "ABCD1234"}, headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(parseResponse(w)))
		})
	}
}

func TestHandler_Totals(t *testing.T) {
	f := newHandlerFixture()
	f.ledger.On("GetCard", mock.Anything, "CARD0001").Return(ledgerCard("gc_1", 1500), nil)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "CARD0001"}, session("s1")).Code)

	w := f.do(http.MethodPost, "/api/v1/cart/totals", gin.H{"total": 40}, session("s1"))

	assert.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, 40.0, data["original_total"])
	assert.Equal(t, 15.0, data["gift_card_total"])
	assert.Equal(t, 25.0, data["total"])
}

func TestHandler_Totals_RejectsNegative(t *testing.T) {
	f := newHandlerFixture()

	w := f.do(http.MethodPost, "/api/v1/cart/totals", gin.H{"total": -1}, session("s1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_RemoveCard(t *testing.T) {
	f := newHandlerFixture()
	f.ledger.On("GetCard", mock.Anything, "CARD0001").Return(ledgerCard("gc_1", 1500), nil)
	f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "CARD0001"}, session("s1"))

	w := f.do(http.MethodDelete, "/api/v1/cart/gift-cards/gc_1", nil, session("s1"))

	assert.Equal(t, http.StatusOK, w.Code)
	state, err := f.sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, state.Cards)
}

// ============================================================================
// Checkout
// ============================================================================

func TestHandler_Submit_BalanceChanged(t *testing.T) {
	f := newHandlerFixture()
	order := f.orders.add(&Order{Total: 40})
	f.ledger.On("GetCard", mock.Anything, "CARD0001").Return(ledgerCard("gc_1", 1500), nil).Once()
	f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "CARD0001"}, session("s1"))
	f.ledger.On("GetCard", mock.Anything, "CARD0001").Return(ledgerCard("gc_1", 500), nil)

	w := f.do(http.MethodPost, "/api/v1/checkout/orders/"+order.ID.String()+"/gift-cards", nil, session("s1"))

	assert.Equal(t, http.StatusConflict, w.Code)
	f.ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
	assert.Empty(t, f.orders.cards(order.ID))
}

func TestHandler_Submit_Success(t *testing.T) {
	f := newHandlerFixture()
	order := f.orders.add(&Order{Total: 40})
	f.ledger.On("GetCard", mock.Anything, "CARD0001").Return(ledgerCard("gc_1", 1500), nil)
	f.ledger.On("Reserve", mock.Anything, mock.MatchedBy(func(req ReserveRequest) bool {
		return req.Code == "CARD0001" && req.AmountCents == 1500
	})).Return(ledgerTx("tx_1", TransactionPending, -1500), nil)

	f.do(http.MethodPost, "/api/v1/cart/gift-cards", gin.H{"code": "CARD0001"}, session("s1"))
	f.do(http.MethodPost, "/api/v1/cart/totals", gin.H{"total": 40}, session("s1"))

	w := f.do(http.MethodPost, "/api/v1/checkout/orders/"+order.ID.String()+"/gift-cards", nil, session("s1"))

	assert.Equal(t, http.StatusCreated, w.Code)
	data := parseResponse(w)["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "tx_1", data[0].(map[string]interface{})["reservation_tx_id"])

	stored := f.orders.cards(order.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, "XXXX - XXXX - XXXX - 0001", stored[0].Code)
}

func TestHandler_Submit_InvalidOrderID(t *testing.T) {
	f := newHandlerFixture()

	w := f.do(http.MethodPost, "/api/v1/checkout/orders/not-a-uuid/gift-cards", nil, session("s1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid order ID", errorMessage(parseResponse(w)))
}

func TestHandler_AppliedCards(t *testing.T) {
	f := newHandlerFixture()
	order := f.orders.add(&Order{GiftCards: []AppliedCard{reservedCard("a", 12.5, "tx_a")}})

	w := f.do(http.MethodGet, "/api/v1/orders/"+order.ID.String()+"/gift-cards", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(w)["data"].(map[string]interface{})
	assert.Len(t, data["cards"], 1)
	assert.Equal(t, 12.5, data["total_applied"])
	assert.Equal(t, 0.0, data["total_refunded"])
}

// ============================================================================
// Admin
// ============================================================================

func TestHandler_Admin_RequiresAdminRole(t *testing.T) {
	f := newHandlerFixture()
	path := "/api/v1/admin/orders/" + uuid.New().String() + "/gift-cards"

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, path, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, path, nil, adminToken(t, "customer")).Code)
}

func TestHandler_Summary_NotFound(t *testing.T) {
	f := newHandlerFixture()

	w := f.do(http.MethodGet, "/api/v1/admin/orders/"+uuid.New().String()+"/gift-cards", nil, adminToken(t, middleware.RoleAdmin))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Capture(t *testing.T) {
	f := newHandlerFixture()
	order := f.orders.add(&Order{GiftCards: []AppliedCard{reservedCard("a", 10, "tx_a")}})
	f.ledger.On("Capture", mock.Anything, "tx_a").Return(ledgerTx("cap_a", TransactionCaptured, -1000), nil)

	w := f.do(http.MethodPost, "/api/v1/admin/orders/"+order.ID.String()+"/gift-cards/capture", nil, adminToken(t, middleware.RoleAdmin))

	assert.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, 1.0, data["succeeded"])
}

func TestHandler_Refund(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"exact amount", gin.H{"amount": 10, "reason": "damaged"}, http.StatusCreated},
		{"wrong amount", gin.H{"amount": 4}, http.StatusBadRequest},
		{"zero amount", gin.H{"amount": 0}, http.StatusBadRequest},
		{"three decimals", gin.H{"amount": 9.999}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			order := f.orders.add(&Order{Total: 0, GiftCards: []AppliedCard{reservedCard("a", 10, "tx_a")}})
			f.ledger.On("GetTransaction", mock.Anything, "tx_a").Return(ledgerTx("tx_a", TransactionPending, -1000), nil)
			f.ledger.On("Release", mock.Anything, "tx_a").Return(ledgerTx("rel_a", TransactionReleased, 1000), nil)

			w := f.do(http.MethodPost, "/api/v1/admin/orders/"+order.ID.String()+"/gift-cards/refund", tt.body, adminToken(t, middleware.RoleAdmin))

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_Refund_CapturedCardConflicts(t *testing.T) {
	f := newHandlerFixture()
	card := reservedCard("a", 10, "tx_a")
	card.CaptureTxID = strPtr("cap_a")
	order := f.orders.add(&Order{GiftCards: []AppliedCard{card}})

	w := f.do(http.MethodPost, "/api/v1/admin/orders/"+order.ID.String()+"/gift-cards/refund", gin.H{"amount": 10}, adminToken(t, middleware.RoleAdmin))

	assert.Equal(t, http.StatusConflict, w.Code)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestHandler_Revenue(t *testing.T) {
	f := newHandlerFixture()
	order := f.orders.add(&Order{GiftCards: []AppliedCard{reservedCard("a", 10, "tx_a")}})

	w := f.do(http.MethodPost, "/api/v1/admin/orders/"+order.ID.String()+"/gift-cards/revenue",
		gin.H{"total_sales": 5.5, "net_total": 4.5}, adminToken(t, middleware.RoleAdmin))

	assert.Equal(t, http.StatusOK, w.Code)
	data := parseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, 15.5, data["total_sales"])
	assert.Equal(t, 14.5, data["net_total"])
}

func TestHandler_StartMigration(t *testing.T) {
	tests := []struct {
		name       string
		version    int
		wantStatus int
		wantJobs   int
	}{
		{"pending migration", 0, http.StatusAccepted, 1},
		{"up to date", LatestSchemaVersion, http.StatusOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			f.legacy.On("SchemaVersion", mock.Anything).Return(tt.version, nil)

			w := f.do(http.MethodPost, "/api/v1/admin/gift-cards/migrations", nil, adminToken(t, middleware.RoleAdmin))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, f.queue.jobs, tt.wantJobs)
		})
	}
}

func TestHandler_InternalErrorsAreMasked(t *testing.T) {
	f := newHandlerFixture()
	f.legacy.On("SchemaVersion", mock.Anything).Return(0, errors.New("pq: relation settings does not exist"))

	w := f.do(http.MethodPost, "/api/v1/admin/gift-cards/migrations", nil, adminToken(t, middleware.RoleAdmin))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to schedule migration", errorMessage(parseResponse(w)))
	assert.NotContains(t, w.Body.String(), "relation")
}

func TestHandler_CodeThrottle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger := new(mockLedger)
	manager := NewManager(newMemSessions(), newMemOrders())
	handler := NewHandler(NewCartService(manager, ledger), nil, nil, NewReadService(manager), nil).
		WithCodeThrottle(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusTooManyRequests)
		})
	router := gin.New()
	handler.RegisterRoutes(router, testJWTSecret)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/cart/gift-cards", bytes.NewReader([]byte(`{"code":"ABCD1234"}`))),
		httptest.NewRequest(http.MethodGet, "/api/v1/gift-cards/ABCD1234/balance", nil),
	} {
		req.Header.Set(SessionHeader, "s1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusTooManyRequests, w.Code, req.URL.Path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid/gift-cards", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code, "routes without a code are not throttled")
	ledger.AssertNotCalled(t, "GetCard", mock.Anything, mock.Anything)
}
