package provider

import (
	"fmt"
	"sort"
	"sync"
)

// GatewayFactory creates a gateway instance.
type GatewayFactory func() Gateway

type registration struct {
	factory GatewayFactory
	fields  []ConfigField
}

// GatewayRegistry manages all gateway implementations
type GatewayRegistry struct {
	gateways  map[string]registration
	instances map[string]Gateway
	mu        sync.RWMutex
}

// NewGatewayRegistry creates a new gateway registry
func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{
		gateways:  make(map[string]registration),
		instances: make(map[string]Gateway),
	}
}

// Register adds a gateway factory together with the account fields it
// requires.
func (r *GatewayRegistry) Register(name string, factory GatewayFactory, fields ...ConfigField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[name] = registration{factory: factory, fields: fields}
	delete(r.instances, name)
}

// Get returns the shared gateway instance, creating it on first use.
// Gateways are stateless, so one instance serves every account.
func (r *GatewayRegistry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	gw, ok := r.instances[name]
	r.mu.RUnlock()
	if ok {
		return gw, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gw, ok := r.instances[name]; ok {
		return gw, nil
	}
	reg, exists := r.gateways[name]
	if !exists {
		return nil, fmt.Errorf("gateway '%s' is not registered: %w", name, ErrUnknownGateway)
	}
	gw = reg.factory()
	r.instances[name] = gw
	return gw, nil
}

// ConfigFields returns the account fields the gateway requires.
func (r *GatewayRegistry) ConfigFields(name string) ([]ConfigField, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, exists := r.gateways[name]
	if !exists {
		return nil, fmt.Errorf("gateway '%s' is not registered: %w", name, ErrUnknownGateway)
	}
	return reg.fields, nil
}

// GetGatewayNames returns the registered names in sorted order
func (r *GatewayRegistry) GetGatewayNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global default gateway registry
var DefaultRegistry = NewGatewayRegistry()

// Register registers a gateway with the default registry
func Register(name string, factory GatewayFactory, fields ...ConfigField) {
	DefaultRegistry.Register(name, factory, fields...)
}

// Get retrieves a gateway from the default registry
func Get(name string) (Gateway, error) {
	return DefaultRegistry.Get(name)
}
