package credential

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// ExpiryWarning is how close to expiry an identity is reported as expiring.
const ExpiryWarning = 7 * 24 * time.Hour

// Certificate represents a TLS certificate with its private key
type Certificate struct {
	// Cert is the leaf X.509 certificate
	Cert *x509.Certificate

	// TLSCert holds the full chain and the private key
	TLSCert tls.Certificate

	// Domains is the list of names this certificate is valid for
	Domains []string

	NotBefore time.Time
	NotAfter  time.Time
}

func newCertificate(tlsCert tls.Certificate, leaf *x509.Certificate) *Certificate {
	domains := make([]string, 0, len(leaf.DNSNames)+1)
	if leaf.Subject.CommonName != "" {
		domains = append(domains, leaf.Subject.CommonName)
	}
	domains = append(domains, leaf.DNSNames...)

	tlsCert.Leaf = leaf
	return &Certificate{
		Cert:      leaf,
		TLSCert:   tlsCert,
		Domains:   domains,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
	}
}

// Bundle is the resolved key and trust material of one server. It is
// shared read-only by every connection.
type Bundle struct {
	// Identity is the server's own key pair, nil when only trust was resolved.
	Identity *Certificate

	// TrustAnchors verifies peer certificates; nil when no trust store is set.
	TrustAnchors *x509.CertPool

	// Trusted lists the certificates in TrustAnchors.
	Trusted []*x509.Certificate

	// KeySource and TrustSource describe where the material came from.
	KeySource   string
	TrustSource string
}

// ExpiresWithin reports whether the identity stops being valid within d.
func (b *Bundle) ExpiresWithin(d time.Duration) bool {
	return b != nil && b.Identity != nil && time.Until(b.Identity.NotAfter) < d
}

func (b *Bundle) HasTrust() bool {
	return b != nil && b.TrustAnchors != nil && len(b.Trusted) > 0
}

// Validate checks the identity's validity window and, when requireTrust is
// set, that trust anchors were resolved.
func (b *Bundle) Validate(requireTrust bool) error {
	if b == nil || b.Identity == nil {
		return ErrNoKeyMaterial
	}

	cert := b.Identity
	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not valid before %s", cert.NotBefore)
	}

	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", cert.NotAfter)
	}

	if requireTrust && !b.HasTrust() {
		return ErrNoTrustMaterial
	}

	return nil
}
