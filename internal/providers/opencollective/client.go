package opencollective

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"collectivepay/internal/common/money"
	"collectivepay/internal/payment"
)

const maxResponseBytes = 1 << 20

// Client looks up contributions on the ledger.
type Client struct {
	apiKey     string
	endpoints  Endpoints
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a ledger client. Every request is bounded by cfg.Timeout.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		apiKey:    cfg.APIKey,
		endpoints: cfg.Endpoints(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// attempt returns a record, or nil with no error to fall through to the next one.
type attempt struct {
	name string
	run  func(ctx context.Context) (*OrderRecord, error)
}

// FetchOrder resolves a reference to an order record. destination scopes the
// legacy fallback, which is only tried for transaction references.
func (c *Client) FetchOrder(ctx context.Context, ref Reference, destination string) (*OrderRecord, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fetch order: api key not set: %w", payment.ErrConfiguration)
	}

	for _, a := range c.attempts(ref, destination) {
		rec, err := a.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch order %s via %s: %w", ref, a.name, err)
		}
		if rec != nil {
			c.logger.Info("order resolved", "ref", ref.String(), "attempt", a.name, "order_id", rec.Reference())
			return rec, nil
		}
		c.logger.Debug("no order found", "ref", ref.String(), "attempt", a.name)
	}

	return nil, fmt.Errorf("fetch order %s: %w", ref, payment.ErrOrderNotFound)
}

func (c *Client) attempts(ref Reference, destination string) []attempt {
	switch ref.Kind {
	case RefOrder:
		return []attempt{{"order_by_id", func(ctx context.Context) (*OrderRecord, error) {
			return c.queryOrder(ctx, map[string]any{"id": ref.ID})
		}}}
	case RefOrderLegacy:
		return []attempt{{"order_by_legacy_id", func(ctx context.Context) (*OrderRecord, error) {
			return c.queryOrder(ctx, map[string]any{"legacyId": ref.LegacyID})
		}}}
	case RefTransaction:
		list := []attempt{{"transaction_by_id", func(ctx context.Context) (*OrderRecord, error) {
			return c.queryTransaction(ctx, map[string]any{"id": ref.ID})
		}}}
		if n, err := strconv.ParseInt(ref.ID, 10, 64); err == nil {
			list = append(list, attempt{"transaction_by_legacy_id", func(ctx context.Context) (*OrderRecord, error) {
				return c.queryTransaction(ctx, map[string]any{"legacyId": n})
			}})
		}
		return append(list, attempt{"legacy_transaction", func(ctx context.Context) (*OrderRecord, error) {
			return c.legacyTransaction(ctx, destination, ref.ID)
		}})
	default:
		return nil
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) queryOrder(ctx context.Context, ref map[string]any) (*OrderRecord, error) {
	var data struct {
		Order *OrderRecord `json:"order"`
	}
	if err := c.graphQL(ctx, orderQuery, map[string]any{"order": ref}, &data); err != nil {
		return nil, err
	}
	return data.Order, nil
}

func (c *Client) queryTransaction(ctx context.Context, ref map[string]any) (*OrderRecord, error) {
	var data struct {
		Transaction *struct {
			ID       string       `json:"id"`
			LegacyID *int64       `json:"legacyId"`
			Order    *OrderRecord `json:"order"`
		} `json:"transaction"`
	}
	if err := c.graphQL(ctx, transactionQuery, map[string]any{"transaction": ref}, &data); err != nil {
		return nil, err
	}
	if data.Transaction == nil {
		return nil, nil
	}
	return data.Transaction.Order, nil
}

// graphQL runs a structured query. Every failure is an ErrUpstream, including
// a response that carries an errors list.
func (c *Client) graphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.GraphQL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: malformed response: %v", payment.ErrUpstream, err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%w: %s", payment.ErrUpstream, resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%w: malformed data: %v", payment.ErrUpstream, err)
	}
	return nil
}

type legacyResponse struct {
	Result *legacyTransactionBody `json:"result"`
}

// legacyTransactionBody is loosely typed: amounts are minor units and the
// order id may appear under several keys, as a number or a string.
type legacyTransactionBody struct {
	Amount   json.Number     `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	OrderID  json.RawMessage `json:"OrderId"`
	Order    *struct {
		ID json.RawMessage `json:"id"`
	} `json:"order"`
	Collective     *Account `json:"collective"`
	FromCollective *Account `json:"fromCollective"`
	Subscription   *struct {
		Interval string `json:"interval"`
	} `json:"subscription"`
}

// legacyTransaction calls the legacy REST API. Transport and decoding
// failures are logged and reported as no record.
func (c *Client) legacyTransaction(ctx context.Context, destination, transactionID string) (*OrderRecord, error) {
	if destination == "" {
		return nil, fmt.Errorf("legacy lookup: collective slug not set: %w", payment.ErrConfiguration)
	}

	u := fmt.Sprintf("%s/collectives/%s/transactions/%s?%s",
		c.endpoints.Legacy,
		url.PathEscape(destination),
		url.PathEscape(transactionID),
		url.Values{"apiKey": {c.apiKey}}.Encode(),
	)

	tx, err := c.fetchLegacy(ctx, u)
	if err != nil {
		c.logger.Warn("legacy transaction lookup failed",
			"transaction_id", transactionID,
			"collective_slug", destination,
			"error", err,
		)
		return nil, nil
	}
	if tx == nil {
		return nil, nil
	}

	if legacyID, ok := tx.orderLegacyID(); ok {
		return c.queryOrder(ctx, map[string]any{"legacyId": legacyID})
	}
	return tx.record(destination, c.logger), nil
}

func (c *Client) fetchLegacy(ctx context.Context, u string) (*legacyTransactionBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp legacyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", payment.ErrUpstream, err)
	}
	return resp.Result, nil
}

// do executes a request and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the request URL, which may carry the API key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %s %s: %v", payment.ErrUpstream, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", payment.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", payment.ErrUpstream, req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

func (t *legacyTransactionBody) orderLegacyID() (int64, bool) {
	if id, ok := parseLegacyID(t.OrderID); ok {
		return id, true
	}
	if t.Order != nil {
		return parseLegacyID(t.Order.ID)
	}
	return 0, false
}

func parseLegacyID(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// record builds an order record from the legacy fields alone.
func (t *legacyTransactionBody) record(destination string, logger *slog.Logger) *OrderRecord {
	rec := &OrderRecord{
		Status:      t.Status,
		Frequency:   FrequencyOneTime,
		ToAccount:   &Account{Slug: destination},
		FromAccount: t.FromCollective,
	}
	if t.Collective != nil && t.Collective.Slug != "" {
		rec.ToAccount = &Account{Slug: t.Collective.Slug}
	}
	if t.Subscription != nil && t.Subscription.Interval != "" {
		rec.Frequency = frequencyFromInterval(t.Subscription.Interval)
	}

	if t.Amount != "" && t.Currency != "" {
		minor, err := t.Amount.Int64()
		if err != nil {
			logger.Warn("legacy amount is not an integer", "amount", t.Amount.String())
		} else {
			m := money.FromLegacyMinor(minor, money.Currency(t.Currency))
			rec.TotalAmount = &Amount{Value: &m.Amount, Currency: t.Currency}
		}
	}
	return rec
}

func frequencyFromInterval(interval string) string {
	switch strings.ToLower(interval) {
	case "month":
		return "MONTHLY"
	case "year":
		return "YEARLY"
	default:
		return strings.ToUpper(interval)
	}
}
