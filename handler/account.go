package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/service"
)

// AccountServiceInterface manages merchant gateway accounts.
type AccountServiceInterface interface {
	SaveAccount(ctx context.Context, merchantKey string, acc *provider.Account) error
	DeleteAccount(ctx context.Context, merchantKey, gateway string) error
	Gateways() []string
	Gateway(name string) (*service.GatewayInfo, error)
}

// AccountHandler serves account and gateway metadata endpoints.
type AccountHandler struct {
	accounts AccountServiceInterface
}

func NewAccountHandler(accounts AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// AccountRequest carries the credentials of a gateway account. The
// account's own JSON form hides secrets, so they are read here.
type AccountRequest struct {
	MerchantID     string                   `json:"merchant_id"`
	TerminalID     string                   `json:"terminal_id"`
	CustomerID     string                   `json:"customer_id"`
	Username       string                   `json:"username"`
	Password       string                   `json:"password"`
	StoreKey       string                   `json:"store_key"`
	RefundUsername string                   `json:"refund_username"`
	RefundPassword string                   `json:"refund_password"`
	Models         []provider.SecurityModel `json:"models"`
	Lang           string                   `json:"lang"`
	TestMode       bool                     `json:"test_mode"`
	APIURL         string                   `json:"api_url"`
	GatewayURL     string                   `json:"gateway_url"`
	QueryURL       string                   `json:"query_url"`
}

func (a AccountRequest) account(gateway string) *provider.Account {
	return &provider.Account{
		Gateway:        gateway,
		MerchantID:     a.MerchantID,
		TerminalID:     a.TerminalID,
		CustomerID:     a.CustomerID,
		Username:       a.Username,
		Password:       a.Password,
		StoreKey:       a.StoreKey,
		RefundUsername: a.RefundUsername,
		RefundPassword: a.RefundPassword,
		Models:         a.Models,
		Lang:           a.Lang,
		TestMode:       a.TestMode,
		APIURL:         a.APIURL,
		GatewayURL:     a.GatewayURL,
		QueryURL:       a.QueryURL,
	}
}

// SaveAccount creates or replaces the merchant's account for a gateway.
func (h *AccountHandler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	acc := req.account(chi.URLParam(r, "gateway"))
	if err := h.accounts.SaveAccount(r.Context(), middle.GetMerchantKey(r.Context()), acc); err != nil {
		writeError(w, "Failed to save account", err)
		return
	}
	response.Success(w, http.StatusOK, "Account saved", acc)
}

// DeleteAccount removes the merchant's account for a gateway.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	if err := h.accounts.DeleteAccount(r.Context(), middle.GetMerchantKey(r.Context()), gateway); err != nil {
		writeError(w, "Failed to delete account", err)
		return
	}
	response.Success(w, http.StatusOK, "Account deleted", map[string]string{"gateway": gateway})
}

// ListGateways lists the registered gateways.
func (h *AccountHandler) ListGateways(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Gateways retrieved", h.accounts.Gateways())
}

// GetGateway describes one gateway and the account fields it needs.
func (h *AccountHandler) GetGateway(w http.ResponseWriter, r *http.Request) {
	info, err := h.accounts.Gateway(chi.URLParam(r, "gateway"))
	if err != nil {
		writeError(w, "Gateway not found", err)
		return
	}
	response.Success(w, http.StatusOK, "Gateway retrieved", info)
}
