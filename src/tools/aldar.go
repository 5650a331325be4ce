package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aldarlabs/voicebridge/src/gemini"
	"github.com/aldarlabs/voicebridge/src/logger"
)

// Circuit breaker settings for the exchange backend. When the backend fails
// repeatedly the circuit opens and tool calls fail fast, so the session
// loop is not stalled for the full timeout on every model retry.
const (
	cbMaxFailures uint32 = 5
	cbTimeout            = 30 * time.Second
	cbInterval           = 60 * time.Second
)

// aldarClient wraps the Aldar Exchange HTTP API behind a circuit breaker.
type aldarClient struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *logger.Logger
}

func newAldarClient(baseURL string) *aldarClient {
	log := logger.WithPrefix("Aldar")
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "aldar-api",
		MaxRequests: 1,
		Interval:    cbInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cbMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &aldarClient{
		base:    baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		breaker: cb,
		log:     log,
	}
}

// get performs a GET against the backend and decodes the JSON body.
func (c *aldarClient) get(ctx context.Context, path string, query url.Values) (interface{}, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	var result interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("bad response body: %w", err)
	}
	return result, nil
}

// asObject shapes an arbitrary JSON value into the object form the model
// protocol requires for function responses.
func asObject(v interface{}) map[string]interface{} {
	if obj, ok := v.(map[string]interface{}); ok {
		return obj
	}
	return map[string]interface{}{"result": v}
}

// RegisterAldarTools wires the exchange-rate tool set against the given
// backend base URL. The declared names and schemas are the wire contract
// with the model.
func RegisterAldarTools(d *Dispatcher, baseURL string) {
	client := newAldarClient(baseURL)

	d.Register(Tool{
		Declaration: gemini.FunctionDeclaration{
			Name:        "get_exchange_rate",
			Description: "Get the current exchange rate for a specific rate type. Use type=1 for standard rates.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"rate_type": map[string]interface{}{
						"type":        "integer",
						"description": "The rate type code (e.g., 1 for standard rate)",
					},
				},
				"required": []string{"rate_type"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			q := url.Values{}
			q.Set("type", strconv.Itoa(intArg(args, "rate_type", 1)))
			result, err := client.get(ctx, "/api/User/GetRate", q)
			if err != nil {
				return nil, err
			}
			return asObject(result), nil
		},
	})

	d.Register(Tool{
		Declaration: gemini.FunctionDeclaration{
			Name:        "get_branch_details",
			Description: "Get details of all Aldar Exchange branch locations including addresses, phone numbers, working hours, and coordinates.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			result, err := client.get(ctx, "/api/User/GetBranchesDetails", nil)
			if err != nil {
				return nil, err
			}
			// The backend returns a bare list; the model protocol requires
			// an object response.
			branches, ok := result.([]interface{})
			if !ok {
				return asObject(result), nil
			}
			return map[string]interface{}{
				"branches":    branches,
				"total_count": len(branches),
			}, nil
		},
	})

	d.Register(Tool{
		Declaration: gemini.FunctionDeclaration{
			Name:        "calculate_exchange",
			Description: "Calculate currency conversion between QAR and foreign currency. Specify either local currency amount (QAR) or foreign currency amount, not both.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"transaction_type": map[string]interface{}{
						"type":        "string",
						"description": "Transaction type: 'tt' for transfer, 'BUY' for buying currency, 'SELL' for selling currency",
						"enum":        []string{"tt", "BUY", "SELL"},
					},
					"currency_code": map[string]interface{}{
						"type":        "string",
						"description": "3-letter ISO currency code (e.g., USD, EUR, GBP)",
					},
					"local_amount": map[string]interface{}{
						"type":        "number",
						"description": "Amount in local currency (QAR). Use 0 if specifying foreign amount.",
					},
					"foreign_amount": map[string]interface{}{
						"type":        "number",
						"description": "Amount in foreign currency. Use 0 if specifying local amount.",
					},
				},
				"required": []string{"transaction_type", "currency_code", "local_amount", "foreign_amount"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			q := url.Values{}
			q.Set("type", stringArg(args, "transaction_type"))
			q.Set("curcode", stringArg(args, "currency_code"))
			q.Set("lcyamount", floatArgString(args, "local_amount"))
			q.Set("fcyamount", floatArgString(args, "foreign_amount"))
			result, err := client.get(ctx, "/api/User/GetRate", q)
			if err != nil {
				return nil, err
			}
			return asObject(result), nil
		},
	})

	d.Register(Tool{
		Declaration: gemini.FunctionDeclaration{
			Name:        "get_transaction_status",
			Description: "Look up the status of a remittance transaction by its reference number.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"transaction_ref_no": map[string]interface{}{
						"type":        "string",
						"description": "The transaction reference number",
					},
				},
				"required": []string{"transaction_ref_no"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			q := url.Values{}
			q.Set("tranRefNo", stringArg(args, "transaction_ref_no"))
			result, err := client.get(ctx, "/api/User/GetTransactionDetails", q)
			if err != nil {
				return nil, err
			}
			return asObject(result), nil
		},
	})

	d.Register(Tool{
		Declaration: gemini.FunctionDeclaration{
			Name:        TransferToolName,
			Description: "Transfer the caller to a live human operator. Use when the caller explicitly asks for a human or the request cannot be handled.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Short reason for the transfer",
					},
				},
				"required": []string{"reason"},
			},
		},
		// No backend: the session loop intercepts this call and begins the
		// takeover handoff.
		Handler: nil,
	})
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func stringArg(args map[string]interface{}, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func floatArgString(args map[string]interface{}, key string) string {
	if f, ok := args[key].(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return "0"
}
