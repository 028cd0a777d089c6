package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/api"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Error is a non-2xx answer from the marketplace API.
type Error struct {
	Status   int
	Message  string
	Incident string
}

func (e Error) Error() string {
	if e.Incident != "" {
		return fmt.Sprintf("%d: %s (incident %s)", e.Status, e.Message, e.Incident)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type Client struct {
	url        string
	httpClient *retryablehttp.Client
}

func NewClient(url string, timeout, retries int) (*Client, error) {
	if len(url) == 0 {
		return nil, errors.New("bad call missing argument url")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = time.Duration(timeout) * time.Second
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{strings.TrimRight(url, "/"), retryClient}, nil
}

type nonIdempotentKey struct{}

// checkRetry retries responses the server marks as temporary, and transport
// failures of requests that are safe to repeat. A POST whose answer was lost
// may already be applied, so it is not sent twice. Ledger rejections,
// including failed transfers, are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return ctx.Value(nonIdempotentKey{}) == nil, nil
	}

	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable, nil
}

func (c *Client) GetListing(ctx context.Context, registry, tokenId string) (api.ListingResponse, error) {
	var out api.ListingResponse
	err := c.call(ctx, http.MethodGet, listingPath(registry, tokenId), nil, &out)
	return out, err
}

func (c *Client) ListItem(ctx context.Context, registry, tokenId, caller, price string) (api.ListingResponse, error) {
	var out api.ListingResponse
	err := c.call(ctx, http.MethodPost, listingPath(registry, tokenId), api.ListingRequest{Caller: caller, Price: price}, &out)
	return out, err
}

func (c *Client) UpdateListing(ctx context.Context, registry, tokenId, caller, price string) (api.ListingResponse, error) {
	var out api.ListingResponse
	err := c.call(ctx, http.MethodPut, listingPath(registry, tokenId), api.ListingRequest{Caller: caller, Price: price}, &out)
	return out, err
}

func (c *Client) CancelListing(ctx context.Context, registry, tokenId, caller string) (api.ListingResponse, error) {
	var out api.ListingResponse
	err := c.call(ctx, http.MethodDelete, listingPath(registry, tokenId), api.ListingRequest{Caller: caller}, &out)
	return out, err
}

func (c *Client) BuyItem(ctx context.Context, registry, tokenId, caller, payment string) (api.ListingResponse, error) {
	var out api.ListingResponse
	err := c.call(ctx, http.MethodPost, listingPath(registry, tokenId)+"/buy", api.BuyRequest{Caller: caller, Payment: payment}, &out)
	return out, err
}

func (c *Client) GetProceeds(ctx context.Context, address string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.call(ctx, http.MethodGet, "/proceeds/"+address, nil, &out)
	return out, err
}

func (c *Client) WithdrawProceeds(ctx context.Context, address string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.call(ctx, http.MethodPost, "/proceeds/"+address+"/withdraw", nil, &out)
	return out, err
}

func (c *Client) Mint(ctx context.Context, registry, tokenId, owner string) (api.TokenResponse, error) {
	var out api.TokenResponse
	err := c.call(ctx, http.MethodPost, tokenPath(registry, tokenId)+"/mint", api.OwnerRequest{Owner: owner}, &out)
	return out, err
}

func (c *Client) Approve(ctx context.Context, registry, tokenId, owner string) (api.TokenResponse, error) {
	var out api.TokenResponse
	err := c.call(ctx, http.MethodPost, tokenPath(registry, tokenId)+"/approve", api.OwnerRequest{Owner: owner}, &out)
	return out, err
}

func (c *Client) GetToken(ctx context.Context, registry, tokenId string) (api.TokenResponse, error) {
	var out api.TokenResponse
	err := c.call(ctx, http.MethodGet, tokenPath(registry, tokenId), nil, &out)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, address, amount string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.call(ctx, http.MethodPost, "/wallet/"+address+"/deposit", api.AmountRequest{Amount: amount}, &out)
	return out, err
}

func (c *Client) GetBalance(ctx context.Context, address string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.call(ctx, http.MethodGet, "/wallet/"+address, nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return xerrors.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequest(method, c.url+path, body)
	if err != nil {
		return err
	}
	if method == http.MethodPost {
		ctx = context.WithValue(ctx, nonIdempotentKey{}, true)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	zap.L().With(zap.String("method", method), zap.String("path", path)).Debug("Client: Request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.Error
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			return Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return Error{Status: resp.StatusCode, Message: apiErr.Error, Incident: apiErr.Incident}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Errorf("%s %s: decode response: %w", method, path, err)
	}

	return nil
}

func listingPath(registry, tokenId string) string {
	return fmt.Sprintf("/listings/%s/%s", registry, tokenId)
}

func tokenPath(registry, tokenId string) string {
	return fmt.Sprintf("/registry/%s/%s", registry, tokenId)
}
