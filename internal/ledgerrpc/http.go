package ledgerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/octwallet/octwallet/internal/tx"
)

const (
	defaultTimeout = 5 * time.Second
	userAgent      = "OctraWallet/2.0"
)

// HTTPClient implements Client against the node's HTTP API.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// NewHTTPClient builds a client for the given node base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
	}
}

// AccountState queries /balance/{address}. The node answers with either JSON
// or a whitespace-delimited "balance nonce" text line; a 404 means the
// address has no history yet and maps to a zero state.
func (c *HTTPClient) AccountState(ctx context.Context, address string) (AccountState, error) {
	body, status, err := c.get(ctx, "/balance/"+url.PathEscape(address))
	if err != nil {
		return AccountState{}, err
	}
	if status == http.StatusNotFound {
		return AccountState{}, nil
	}
	if status != http.StatusOK {
		return AccountState{}, fmt.Errorf("%w: balance query returned %d", ErrTransport, status)
	}
	return parseAccountState(body)
}

func parseAccountState(body []byte) (AccountState, error) {
	if gjson.ValidBytes(body) && gjson.GetBytes(body, "balance").Exists() {
		balance, err := decimal.NewFromString(gjson.GetBytes(body, "balance").String())
		if err != nil {
			return AccountState{}, fmt.Errorf("%w: malformed balance: %v", ErrTransport, err)
		}
		return AccountState{Balance: balance, Nonce: gjson.GetBytes(body, "nonce").Uint()}, nil
	}

	parts := strings.Fields(string(body))
	if len(parts) < 2 {
		return AccountState{}, fmt.Errorf("%w: unrecognized balance response %q", ErrTransport, body)
	}
	balance, err := decimal.NewFromString(parts[0])
	if err != nil {
		return AccountState{}, fmt.Errorf("%w: malformed balance: %v", ErrTransport, err)
	}
	var nonce uint64
	if _, err := fmt.Sscanf(parts[1], "%d", &nonce); err != nil {
		return AccountState{}, fmt.Errorf("%w: malformed nonce: %v", ErrTransport, err)
	}
	return AccountState{Balance: balance, Nonce: nonce}, nil
}

// Submit posts a signed transaction to /send-tx. Any verdict from the node,
// acceptance or rejection, returns a nil error.
func (c *HTTPClient) Submit(ctx context.Context, signed tx.Signed) (SubmitResult, error) {
	payload, err := json.Marshal(signed)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-tx", bytes.NewReader(payload))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if gjson.GetBytes(body, "status").String() == "accepted" {
		return SubmitResult{Accepted: true, TxHash: gjson.GetBytes(body, "tx_hash").String()}, nil
	}
	return SubmitResult{Accepted: false, Detail: strings.TrimSpace(string(body))}, nil
}

// RecentTransactions queries /address/{address}?limit=n for recent hashes.
func (c *HTTPClient) RecentTransactions(ctx context.Context, address string, limit int) ([]string, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("/address/%s?limit=%d", url.PathEscape(address), limit))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: address query returned %d", ErrTransport, status)
	}

	var hashes []string
	for _, ref := range gjson.GetBytes(body, "recent_transactions").Array() {
		if h := ref.Get("hash").String(); h != "" {
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

// TransactionDetail fetches /tx/{hash} and flattens the parsed_tx view.
func (c *HTTPClient) TransactionDetail(ctx context.Context, hash string) (TxDetail, error) {
	body, status, err := c.get(ctx, "/tx/"+url.PathEscape(hash))
	if err != nil {
		return TxDetail{}, err
	}
	if status != http.StatusOK {
		return TxDetail{}, fmt.Errorf("%w: tx query returned %d", ErrTransport, status)
	}

	parsed := gjson.GetBytes(body, "parsed_tx")
	amount, err := decimal.NewFromString(parsed.Get("amount").String())
	if err != nil {
		amount = decimal.Zero
	}

	detail := TxDetail{
		Hash:   gjson.GetBytes(body, "hash").String(),
		From:   parsed.Get("from").String(),
		To:     parsed.Get("to").String(),
		Amount: amount,
		Nonce:  parsed.Get("nonce").Uint(),
		Epoch:  gjson.GetBytes(body, "epoch").Int(),
	}
	if ts := parsed.Get("timestamp").Float(); ts > 0 {
		sec := int64(ts)
		detail.Timestamp = time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
	}
	if detail.Hash == "" {
		detail.Hash = hash
	}
	return detail, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return body, resp.StatusCode, nil
}
