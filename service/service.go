// Package service is the payment facade used by the HTTP layer. It loads
// merchant accounts, runs gateway calls and 3-D flows, persists sessions
// and records every call for audit and metrics.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/provider/threed"
)

// AccountStore persists merchant accounts per gateway.
type AccountStore interface {
	Account(ctx context.Context, merchantKey, gateway string) (*provider.Account, error)
	SaveAccount(ctx context.Context, merchantKey string, acc *provider.Account) error
	DeleteAccount(ctx context.Context, merchantKey, gateway string) error
}

// AuditSink records one entry per gateway call.
type AuditSink interface {
	LogTransaction(ctx context.Context, entry opensearch.TransactionLog) error
}

// Options wires a PaymentService. Registry, Transport and Accounts are
// required.
type Options struct {
	Registry  *provider.GatewayRegistry
	Transport provider.Transport
	Accounts  AccountStore
	Sessions  threed.SessionStore
	Cache     provider.AccountCache
	Audit     AuditSink

	// CallbackBase is the public base URL of this service. When set, 3-D
	// flows send the bank callback to CallbackBase/callback/{gateway}/{session}
	// and the merchant URLs become the final browser redirect.
	CallbackBase string
}

// PaymentService manages payment operations through the registered gateways
type PaymentService struct {
	registry     *provider.GatewayRegistry
	transport    provider.Transport
	accounts     AccountStore
	sessions     threed.SessionStore
	cache        provider.AccountCache
	audit        AuditSink
	callbackBase string
	now          func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(opts Options) (*PaymentService, error) {
	if opts.Registry == nil || opts.Transport == nil || opts.Accounts == nil {
		return nil, fmt.Errorf("payment service requires a registry, a transport and an account store")
	}
	s := &PaymentService{
		registry:     opts.Registry,
		transport:    opts.Transport,
		accounts:     opts.Accounts,
		sessions:     opts.Sessions,
		cache:        opts.Cache,
		audit:        opts.Audit,
		callbackBase: strings.TrimRight(opts.CallbackBase, "/"),
		now:          time.Now,
	}
	if s.sessions == nil {
		s.sessions = threed.NewMemoryStore(30 * time.Minute)
	}
	if s.cache == nil {
		s.cache = provider.NewAccountCache(100, 5*time.Minute)
	}
	return s, nil
}

// Gateways lists the registered gateway names.
func (s *PaymentService) Gateways() []string {
	return s.registry.GetGatewayNames()
}

// GatewayInfo describes a registered gateway.
type GatewayInfo struct {
	Name         string                 `json:"name"`
	Capabilities provider.Capabilities  `json:"capabilities"`
	ConfigFields []provider.ConfigField `json:"config_fields"`
}

// Gateway returns what the named gateway supports and needs.
func (s *PaymentService) Gateway(name string) (*GatewayInfo, error) {
	gw, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	fields, err := s.registry.ConfigFields(name)
	if err != nil {
		return nil, err
	}
	return &GatewayInfo{Name: gw.Name(), Capabilities: gw.Capabilities(), ConfigFields: fields}, nil
}

// SaveAccount validates and stores a merchant account.
func (s *PaymentService) SaveAccount(ctx context.Context, merchantKey string, acc *provider.Account) error {
	if err := provider.ValidateAccount(s.registry, acc); err != nil {
		return err
	}
	if err := s.accounts.SaveAccount(ctx, merchantKey, acc); err != nil {
		return err
	}
	s.cache.Delete(merchantKey, acc.Gateway)
	logger.Info("Merchant account saved", logger.LogContext{MerchantKey: merchantKey, Provider: acc.Gateway})
	return nil
}

// DeleteAccount removes a merchant account.
func (s *PaymentService) DeleteAccount(ctx context.Context, merchantKey, gateway string) error {
	s.cache.Delete(merchantKey, gateway)
	return s.accounts.DeleteAccount(ctx, merchantKey, gateway)
}

// CacheStats reports the account cache counters.
func (s *PaymentService) CacheStats() provider.CacheStats {
	return s.cache.Stats()
}

// resolve returns the gateway and the merchant's account for it.
func (s *PaymentService) resolve(ctx context.Context, merchantKey, gateway string) (provider.Gateway, *provider.Account, error) {
	gw, err := s.registry.Get(gateway)
	if err != nil {
		return nil, nil, err
	}
	if acc := s.cache.Get(merchantKey, gateway); acc != nil {
		return gw, acc, nil
	}
	acc, err := s.accounts.Account(ctx, merchantKey, gateway)
	if err != nil {
		return nil, nil, err
	}
	if err := provider.ValidateAccount(s.registry, acc); err != nil {
		return nil, nil, err
	}
	s.cache.Set(merchantKey, gateway, acc)
	return gw, acc, nil
}
