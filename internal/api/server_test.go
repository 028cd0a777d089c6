package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	marketplace = "0x0000000000000000000000000000000000006d6b"
	nftRegistry = "0x0000000000000000000000000000000000000064"
	seller      = "0x0000000000000000000000000000000000000001"
	buyer       = "0x0000000000000000000000000000000000000002"
)

type testServer struct {
	handler  http.Handler
	ledger   *ledger.Ledger
	registry registry.Registry
	wallet   wallet.Wallet
}

func newTestServer() testServer {
	addr := entity.Address(marketplace)
	reg := registry.NewRegistry(addr)
	w := wallet.NewWallet(addr)
	l := ledger.NewLedger(reg, w, nil)

	return testServer{
		handler:  NewServer(l, addr, reg, w).Router(),
		ledger:   l,
		registry: reg,
		wallet:   w,
	}
}

func (s testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}

	return rec, out
}

func (s testServer) mintAndApprove(t *testing.T, tokenId, owner string) {
	rec, _ := s.do(t, http.MethodPost, "/registry/"+nftRegistry+"/"+tokenId+"/mint", `{"owner":"`+owner+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/registry/"+nftRegistry+"/"+tokenId+"/approve", `{"owner":"`+owner+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	rec, _ := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMarketplaceFlowOverHttp(t *testing.T) {
	s := newTestServer()
	s.mintAndApprove(t, "1", seller)

	rec, out := s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/1", `{"caller":"`+seller+`","price":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["listed"])
	assert.Equal(t, "100", out["price"])
	assert.Equal(t, seller, out["seller"])

	rec, out = s.do(t, http.MethodPut, "/listings/"+nftRegistry+"/1", `{"caller":"`+seller+`","price":"150"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "150", out["price"])

	rec, _ = s.do(t, http.MethodPost, "/wallet/"+buyer+"/deposit", `{"amount":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/1/buy", `{"caller":"`+buyer+`","payment":"100"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "insufficient payment")

	rec, out = s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/1/buy", `{"caller":"`+buyer+`","payment":"150"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, out["listed"])
	assert.Equal(t, "0", out["price"])

	_, out = s.do(t, http.MethodGet, "/registry/"+nftRegistry+"/1", "")
	assert.Equal(t, buyer, out["owner"])
	assert.Equal(t, "", out["approved"])

	_, out = s.do(t, http.MethodGet, "/proceeds/"+seller, "")
	assert.Equal(t, "150", out["amount"])

	rec, out = s.do(t, http.MethodPost, "/proceeds/"+seller+"/withdraw", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0", out["amount"])

	_, out = s.do(t, http.MethodGet, "/wallet/"+seller, "")
	assert.Equal(t, "150", out["amount"])
	_, out = s.do(t, http.MethodGet, "/wallet/"+buyer, "")
	assert.Equal(t, "850", out["amount"])

	rec, _ = s.do(t, http.MethodPost, "/proceeds/"+seller+"/withdraw", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelListingOverHttp(t *testing.T) {
	s := newTestServer()
	s.mintAndApprove(t, "2", seller)

	rec, _ := s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/2", `{"caller":"`+seller+`","price":"5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/listings/"+nftRegistry+"/2", `{"caller":"`+buyer+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := s.do(t, http.MethodDelete, "/listings/"+nftRegistry+"/2", `{"caller":"`+seller+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["listed"])

	rec, _ = s.do(t, http.MethodDelete, "/listings/"+nftRegistry+"/2", `{"caller":"`+seller+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer()
	s.mintAndApprove(t, "3", seller)
	rec, _ := s.do(t, http.MethodPost, "/registry/"+nftRegistry+"/4/mint", `{"owner":"`+seller+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad token id", http.MethodGet, "/listings/" + nftRegistry + "/abc", "", http.StatusBadRequest},
		{"bad registry", http.MethodGet, "/listings/zzz/1", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/listings/" + nftRegistry + "/3", `{`, http.StatusBadRequest},
		{"zero price", http.MethodPost, "/listings/" + nftRegistry + "/3", `{"caller":"` + seller + `","price":"0"}`, http.StatusBadRequest},
		{"negative price", http.MethodPost, "/listings/" + nftRegistry + "/3", `{"caller":"` + seller + `","price":"-1"}`, http.StatusBadRequest},
		{"not owner", http.MethodPost, "/listings/" + nftRegistry + "/3", `{"caller":"` + buyer + `","price":"1"}`, http.StatusForbidden},
		{"not approved", http.MethodPost, "/listings/" + nftRegistry + "/4", `{"caller":"` + seller + `","price":"1"}`, http.StatusForbidden},
		{"unminted", http.MethodPost, "/listings/" + nftRegistry + "/9", `{"caller":"` + seller + `","price":"1"}`, http.StatusNotFound},
		{"buy unlisted", http.MethodPost, "/listings/" + nftRegistry + "/3/buy", `{"caller":"` + buyer + `","payment":"1"}`, http.StatusNotFound},
		{"update unlisted", http.MethodPut, "/listings/" + nftRegistry + "/3", `{"caller":"` + seller + `","price":"1"}`, http.StatusNotFound},
		{"mint twice", http.MethodPost, "/registry/" + nftRegistry + "/3/mint", `{"owner":"` + seller + `"}`, http.StatusConflict},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec, _ = s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/3", `{"caller":"`+seller+`","price":"1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/3", `{"caller":"`+seller+`","price":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBuyWithoutFundsRollsBack(t *testing.T) {
	s := newTestServer()
	s.mintAndApprove(t, "5", seller)
	rec, _ := s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/5", `{"caller":"`+seller+`","price":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, out := s.do(t, http.MethodPost, "/listings/"+nftRegistry+"/5/buy", `{"caller":"`+buyer+`","payment":"10"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, out["error"], "insufficient funds")

	_, listed := s.ledger.Lookup(context.Background(), entity.AssetKey{Registry: nftRegistry, TokenId: 5})
	assert.True(t, listed)
	assert.Equal(t, "0", s.ledger.GetProceeds(context.Background(), seller).String())
}

func TestSandboxRoutesAreOptional(t *testing.T) {
	handler := NewServer(ledger.NewLedger(nil, nil, nil), marketplace, nil, nil).Router()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet/"+buyer, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewError_IncidentOnlyForServerErrors(t *testing.T) {
	assert.Empty(t, NewError(http.StatusBadRequest, errors.New("x")).Incident)
	assert.NotEmpty(t, NewError(http.StatusInternalServerError, errors.New("x")).Incident)
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("unexpected")))
}
