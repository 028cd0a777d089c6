package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Marketplace is the ledger surface served over HTTP.
type Marketplace interface {
	ListItem(ctx context.Context, key entity.AssetKey, price *big.Int, caller entity.Address) error
	CancelListing(ctx context.Context, key entity.AssetKey, caller entity.Address) error
	UpdateListing(ctx context.Context, key entity.AssetKey, newPrice *big.Int, caller entity.Address) error
	BuyItem(ctx context.Context, key entity.AssetKey, caller entity.Address, payment *big.Int) error
	WithdrawProceeds(ctx context.Context, caller entity.Address) error
	Lookup(ctx context.Context, key entity.AssetKey) (entity.Listing, bool)
	GetProceeds(ctx context.Context, addr entity.Address) *big.Int
}

type Server struct {
	marketplace Marketplace
	address     entity.Address
	registry    registry.Registry
	wallet      wallet.Wallet
}

// NewServer serves the marketplace. The sandbox registry and wallet routes
// are only mounted when both are given.
func NewServer(marketplace Marketplace, address entity.Address, registry registry.Registry, wallet wallet.Wallet) Server {
	return Server{marketplace, address, registry, wallet}
}

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/listings/{registry}/{tokenId}", s.handleGetListing).Methods(http.MethodGet)
	r.HandleFunc("/listings/{registry}/{tokenId}", s.handleListItem).Methods(http.MethodPost)
	r.HandleFunc("/listings/{registry}/{tokenId}", s.handleUpdateListing).Methods(http.MethodPut)
	r.HandleFunc("/listings/{registry}/{tokenId}", s.handleCancelListing).Methods(http.MethodDelete)
	r.HandleFunc("/listings/{registry}/{tokenId}/buy", s.handleBuyItem).Methods(http.MethodPost)

	r.HandleFunc("/proceeds/{address}", s.handleGetProceeds).Methods(http.MethodGet)
	r.HandleFunc("/proceeds/{address}/withdraw", s.handleWithdrawProceeds).Methods(http.MethodPost)

	if s.registry != nil && s.wallet != nil {
		r.HandleFunc("/registry/{registry}/{tokenId}", s.handleGetToken).Methods(http.MethodGet)
		r.HandleFunc("/registry/{registry}/{tokenId}/mint", s.handleMint).Methods(http.MethodPost)
		r.HandleFunc("/registry/{registry}/{tokenId}/approve", s.handleApprove).Methods(http.MethodPost)
		r.HandleFunc("/wallet/{address}", s.handleGetBalance).Methods(http.MethodGet)
		r.HandleFunc("/wallet/{address}/deposit", s.handleDeposit).Methods(http.MethodPost)
	}

	r.NotFoundHandler = notFoundHandler()

	return r
}

type ListingRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price,omitempty"`
}

type BuyRequest struct {
	Caller  string `json:"caller"`
	Payment string `json:"payment"`
}

type OwnerRequest struct {
	Owner string `json:"owner"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type ListingResponse struct {
	Registry string `json:"registry"`
	TokenId  uint64 `json:"tokenId"`
	Listed   bool   `json:"listed"`
	Seller   string `json:"seller"`
	Price    string `json:"price"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type TokenResponse struct {
	Registry string `json:"registry"`
	TokenId  uint64 `json:"tokenId"`
	Owner    string `json:"owner"`
	Approved string `json:"approved"`
}

func (s Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.listingResponse(r.Context(), key))
}

func (s Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	key, caller, price, err := s.readListingRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.marketplace.ListItem(r.Context(), key, price, caller); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.listingResponse(r.Context(), key))
}

func (s Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	key, caller, price, err := s.readListingRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.marketplace.UpdateListing(r.Context(), key, price, caller); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.listingResponse(r.Context(), key))
}

func (s Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req ListingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := entity.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.marketplace.CancelListing(r.Context(), key, caller); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.listingResponse(r.Context(), key))
}

func (s Server) handleBuyItem(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req BuyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller, err := entity.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := entity.ParseAmount(req.Payment)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.marketplace.BuyItem(r.Context(), key, caller, payment); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.listingResponse(r.Context(), key))
}

func (s Server) handleGetProceeds(w http.ResponseWriter, r *http.Request) {
	addr, err := getAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{addr.String(), s.marketplace.GetProceeds(r.Context(), addr).String()})
}

func (s Server) handleWithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	addr, err := getAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.marketplace.WithdrawProceeds(r.Context(), addr); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{addr.String(), s.marketplace.GetProceeds(r.Context(), addr).String()})
}

func (s Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.writeToken(w, r, key, http.StatusOK)
}

func (s Server) handleMint(w http.ResponseWriter, r *http.Request) {
	key, owner, err := readOwnerRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.registry.Mint(r.Context(), key, owner); err != nil {
		writeError(w, r, err)
		return
	}

	s.writeToken(w, r, key, http.StatusCreated)
}

// handleApprove approves the marketplace to move the token on the owner's behalf.
func (s Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	key, owner, err := readOwnerRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.registry.Approve(r.Context(), key, owner, s.address); err != nil {
		writeError(w, r, err)
		return
	}

	s.writeToken(w, r, key, http.StatusOK)
}

func (s Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := getAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{addr.String(), s.wallet.BalanceOf(r.Context(), addr).String()})
}

func (s Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := getAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req AmountRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := entity.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.wallet.Deposit(r.Context(), addr, amount); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{addr.String(), s.wallet.BalanceOf(r.Context(), addr).String()})
}

func (s Server) listingResponse(ctx context.Context, key entity.AssetKey) ListingResponse {
	listing, listed := s.marketplace.Lookup(ctx, key)

	return ListingResponse{
		Registry: key.Registry.String(),
		TokenId:  key.TokenId,
		Listed:   listed,
		Seller:   listing.Seller.String(),
		Price:    entity.AmountString(listing.Price),
	}
}

func (s Server) writeToken(w http.ResponseWriter, r *http.Request, key entity.AssetKey, status int) {
	owner, err := s.registry.OwnerOf(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	approved, err := s.registry.GetApproved(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, status, TokenResponse{key.Registry.String(), key.TokenId, owner.String(), approved.String()})
}

func (s Server) readListingRequest(r *http.Request) (entity.AssetKey, entity.Address, *big.Int, error) {
	key, err := getAssetKey(r)
	if err != nil {
		return entity.AssetKey{}, "", nil, err
	}

	var req ListingRequest
	if err := readJSON(r, &req); err != nil {
		return entity.AssetKey{}, "", nil, err
	}
	caller, err := entity.ParseAddress(req.Caller)
	if err != nil {
		return entity.AssetKey{}, "", nil, err
	}
	price, err := entity.ParseAmount(req.Price)
	if err != nil {
		return entity.AssetKey{}, "", nil, err
	}

	return key, caller, price, nil
}

func readOwnerRequest(r *http.Request) (entity.AssetKey, entity.Address, error) {
	key, err := getAssetKey(r)
	if err != nil {
		return entity.AssetKey{}, "", err
	}

	var req OwnerRequest
	if err := readJSON(r, &req); err != nil {
		return entity.AssetKey{}, "", err
	}
	owner, err := entity.ParseAddress(req.Owner)
	if err != nil {
		return entity.AssetKey{}, "", err
	}

	return key, owner, nil
}

func getAssetKey(r *http.Request) (entity.AssetKey, error) {
	vars := mux.Vars(r)
	return entity.NewAssetKey(vars["registry"], vars["tokenId"])
}

func getAddress(r *http.Request) (entity.Address, error) {
	return entity.ParseAddress(mux.Vars(r)["address"])
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return xerrors.Errorf("%v: %w", err, ErrBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().With(zap.Error(err)).Warn("Api: Failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := NewError(statusFor(err), err)

	logger := zap.L().With(zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", e.Status))
	if e.Incident != "" {
		logger.With(zap.String("incident", e.Incident)).Error("Api: Request failed")
	} else {
		logger.Debug("Api: Request rejected")
	}

	writeJSON(w, e.Status, e)
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, NewError(http.StatusNotFound, xerrors.New("page not found")))
	})
}
