package engine

import "slices"

// Capability describes one engine in the current build.
type Capability struct {
	Kind      Kind
	Available bool
	ALPN      bool
	Reason    string
}

type registration struct {
	build  func() Engine
	alpn   bool
	reason string
}

// Provider hands out engines by kind. The set of registered engines is
// fixed at construction and safe for concurrent reads.
type Provider struct {
	engines map[Kind]registration
}

// NewProvider returns a provider with every engine compiled into this
// binary. The native engine is only present in builds tagged fasttls.
func NewProvider() *Provider {
	p := &Provider{engines: make(map[Kind]registration)}

	p.engines[KindDefault] = registration{build: newDefaultEngine, alpn: true}
	p.engines[KindManaged] = registration{build: newManagedEngine, alpn: true}
	p.engines[KindNative] = nativeRegistration()

	return p
}

// Get returns the engine for kind, or an *UnavailableError when the kind
// is not usable in this build. Get never fails for KindDefault.
func (p *Provider) Get(kind Kind) (Engine, error) {
	reg, ok := p.engines[kind]
	if !ok {
		return nil, &UnavailableError{Kind: kind, Reason: "not registered"}
	}
	if reg.build == nil {
		return nil, &UnavailableError{Kind: kind, Reason: reg.reason}
	}

	return reg.build(), nil
}

// SupportsALPN reports the ALPN capability of kind without building it.
func (p *Provider) SupportsALPN(kind Kind) (bool, error) {
	reg, ok := p.engines[kind]
	if !ok {
		return false, &UnavailableError{Kind: kind, Reason: "not registered"}
	}
	if reg.build == nil {
		return false, &UnavailableError{Kind: kind, Reason: reg.reason}
	}
	return reg.alpn, nil
}

// Capabilities lists every known kind in a stable order.
func (p *Provider) Capabilities() []Capability {
	caps := make([]Capability, 0, len(p.engines))
	for kind, reg := range p.engines {
		caps = append(caps, Capability{
			Kind:      kind,
			Available: reg.build != nil,
			ALPN:      reg.build != nil && reg.alpn,
			Reason:    reg.reason,
		})
	}

	slices.SortFunc(caps, func(a, b Capability) int {
		return int(a.Kind) - int(b.Kind)
	})
	return caps
}

// Register replaces the backend for kind. It exists for tests and for
// embedders that bring their own TLS library; call it before the provider
// is shared.
func (p *Provider) Register(kind Kind, alpn bool, build func() Engine) {
	p.engines[kind] = registration{build: build, alpn: alpn}
}

// Disable marks kind unavailable with the given reason.
func (p *Provider) Disable(kind Kind, reason string) {
	p.engines[kind] = registration{reason: reason}
}
