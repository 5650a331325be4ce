package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldarlabs/voicebridge/src/gemini"
)

func newAldarBackend(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Dispatcher) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d := NewDispatcher()
	RegisterAldarTools(d, srv.URL)
	return srv, d
}

func TestGetExchangeRate(t *testing.T) {
	var gotQuery string
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/User/GetRate", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"rate": 3.64, "currency": "USD"}`))
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{
		ID:   "1",
		Name: "get_exchange_rate",
		Args: map[string]interface{}{"rate_type": float64(1)},
	})
	assert.Equal(t, "type=1", gotQuery)
	assert.Equal(t, 3.64, resp.Response["rate"])
}

func TestGetBranchDetailsWrapsList(t *testing.T) {
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/User/GetBranchesDetails", r.URL.Path)
		w.Write([]byte(`[{"name": "Doha Main"}, {"name": "Al Wakra"}]`))
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{Name: "get_branch_details"})
	require.NotContains(t, resp.Response, "error")
	assert.Equal(t, 2, resp.Response["total_count"])
	branches, ok := resp.Response["branches"].([]interface{})
	require.True(t, ok)
	assert.Len(t, branches, 2)
}

func TestCalculateExchangeQueryMapping(t *testing.T) {
	var got map[string]string
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"type":      q.Get("type"),
			"curcode":   q.Get("curcode"),
			"lcyamount": q.Get("lcyamount"),
			"fcyamount": q.Get("fcyamount"),
		}
		w.Write([]byte(`{"converted": 275.5}`))
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{
		Name: "calculate_exchange",
		Args: map[string]interface{}{
			"transaction_type": "BUY",
			"currency_code":    "USD",
			"local_amount":     float64(1000),
			"foreign_amount":   float64(0),
		},
	})
	assert.Equal(t, "BUY", got["type"])
	assert.Equal(t, "USD", got["curcode"])
	assert.Equal(t, "1000", got["lcyamount"])
	assert.Equal(t, "0", got["fcyamount"])
	assert.Equal(t, 275.5, resp.Response["converted"])
}

func TestGetTransactionStatus(t *testing.T) {
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/User/GetTransactionDetails", r.URL.Path)
		assert.Equal(t, "TRX-99", r.URL.Query().Get("tranRefNo"))
		w.Write([]byte(`{"status": "COMPLETED"}`))
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{
		Name: "get_transaction_status",
		Args: map[string]interface{}{"transaction_ref_no": "TRX-99"},
	})
	assert.Equal(t, "COMPLETED", resp.Response["status"])
}

func TestBackendErrorSurfacesToModel(t *testing.T) {
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{
		Name: "get_exchange_rate",
		Args: map[string]interface{}{"rate_type": float64(1)},
	})
	assert.Contains(t, resp.Response["error"], "API call failed")
}

func TestNonObjectResponseWrapped(t *testing.T) {
	_, d := newAldarBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`3.64`))
	})

	resp := d.Dispatch(context.Background(), gemini.FunctionCall{
		Name: "get_exchange_rate",
		Args: map[string]interface{}{"rate_type": float64(1)},
	})
	assert.Equal(t, 3.64, resp.Response["result"])
}

func TestRegisterAldarToolsDeclaresTransfer(t *testing.T) {
	d := NewDispatcher()
	RegisterAldarTools(d, "http://example.invalid")

	names := make([]string, 0)
	for _, decl := range d.Declarations() {
		names = append(names, decl.Name)
	}
	assert.Contains(t, names, TransferToolName)
	assert.Contains(t, names, "get_exchange_rate")
	assert.Contains(t, names, "get_branch_details")
	assert.Contains(t, names, "calculate_exchange")
	assert.Contains(t, names, "get_transaction_status")
}
