package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCentsToAmount(t *testing.T) {
	require.Equal(t, "0.00", centsToAmount(0))
	require.Equal(t, "0.05", centsToAmount(5))
	require.Equal(t, "12.34", centsToAmount(1234))
	require.Equal(t, "100.00", centsToAmount(10000))
}

func TestAmountToCents(t *testing.T) {
	for raw, want := range map[string]int64{
		"0.00":   0,
		"0.05":   5,
		"12.34":  1234,
		"100":    10000,
		" 9.99 ": 999,
	} {
		got, err := amountToCents(raw)
		require.NoError(t, err)
		require.Equal(t, want, int64(got), raw)
	}

	_, err := amountToCents("not-a-number")
	require.Error(t, err)
}

func paypalTestServer(t *testing.T, orderStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			PurchaseUnits []struct {
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.PurchaseUnits) != 1 || body.PurchaseUnits[0].Amount.Value != "54.21" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-1",
			"status": "CREATED",
			"links":  []map[string]string{{"rel": "approve", "href": "https://paypal.test/approve/PP-1"}},
		})
	})
	mux.HandleFunc("/v2/checkout/orders/PP-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-1",
			"status": orderStatus,
			"purchase_units": []map[string]any{{
				"payments": map[string]any{
					"captures": []map[string]any{{
						"id":     "CAP-1",
						"status": orderStatus,
						"amount": map[string]string{"currency_code": "EUR", "value": "54.21"},
					}},
				},
			}},
		})
	})
	return httptest.NewServer(mux)
}

func TestPayPalCreateAndCapture(t *testing.T) {
	srv := paypalTestServer(t, "COMPLETED")
	defer srv.Close()

	provider := &PayPal{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret", HTTPClient: srv.Client()}

	order, err := provider.CreateOrder(context.Background(), CreateOrderRequest{
		Reference: "session-1",
		Amount:    5421,
		Currency:  "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, "PP-1", order.ID)
	require.Equal(t, "https://paypal.test/approve/PP-1", order.ApproveLink)

	result, err := provider.CaptureOrder(context.Background(), "PP-1")
	require.NoError(t, err)
	require.True(t, result.Completed())
	require.Equal(t, int64(5421), int64(result.Amount))
	require.Equal(t, "EUR", result.Currency)
	require.Equal(t, "CAP-1", result.CaptureID)
}

func TestPayPalCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	provider := &PayPal{}
	_, err := provider.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0})
	require.Error(t, err)
}
