package cart

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/service/httpx"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() *gin.Engine {
	router := httpx.NewRouter("cart-test", nil)
	NewHandler(memory.NewCartRepository(), nil).RegisterRoutes(router)
	return router
}

func request(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) checkoutv1.CartResponse {
	t.Helper()
	var resp checkoutv1.CartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCartHandler_Lifecycle(t *testing.T) {
	router := newTestRouter()

	rec := request(t, router, http.MethodPut, "/api/v1/carts/u1/lines/A", checkoutv1.PutCartLineRequest{Qty: 30, UnitPriceMinor: 150})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = request(t, router, http.MethodPut, "/api/v1/carts/u1/lines/B", checkoutv1.PutCartLineRequest{Qty: 2, UnitPriceMinor: 1000})
	require.Equal(t, http.StatusOK, rec.Code)

	cart := decodeCart(t, request(t, router, http.MethodGet, "/api/v1/carts/u1", nil))
	require.Len(t, cart.Lines, 2)
	require.Equal(t, int64(30*150+2*1000), cart.TotalMinor)

	rec = request(t, router, http.MethodDelete, "/api/v1/carts/u1/lines/B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeCart(t, rec).Lines, 1)

	// qty = 0 удаляет строку.
	rec = request(t, router, http.MethodPut, "/api/v1/carts/u1/lines/A", checkoutv1.PutCartLineRequest{Qty: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeCart(t, rec).Lines)

	request(t, router, http.MethodPut, "/api/v1/carts/u1/lines/C", checkoutv1.PutCartLineRequest{Qty: 1, UnitPriceMinor: 5})
	rec = request(t, router, http.MethodDelete, "/api/v1/carts/u1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = request(t, router, http.MethodDelete, "/api/v1/carts/u1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cart = decodeCart(t, request(t, router, http.MethodGet, "/api/v1/carts/u1", nil))
	require.Empty(t, cart.Lines)
	require.Zero(t, cart.TotalMinor)
}

func TestCartHandler_RejectsBadPayload(t *testing.T) {
	router := newTestRouter()

	rec := request(t, router, http.MethodPut, "/api/v1/carts/u1/lines/A", "oops")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp checkoutv1.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, checkoutv1.ErrCodeInvalidRequest, resp.Error.Code)
}
