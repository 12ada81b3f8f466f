// Package credential resolves server key material and peer trust material
// from key stores (PKCS#12, JKS) or PEM files into a Bundle.
package credential

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// StoreType is the on-disk format of a key or trust store.
type StoreType string

const (
	TypePKCS12 StoreType = "PKCS12"
	TypeJKS    StoreType = "JKS"
	TypePEM    StoreType = "PEM"
)

// ParseStoreType normalises a store type name. "p12" and "pfx" are
// accepted for PKCS12.
func ParseStoreType(s string) (StoreType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PKCS12", "P12", "PFX":
		return TypePKCS12, nil
	case "JKS":
		return TypeJKS, nil
	case "PEM":
		return TypePEM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// StoreSpec points at an archive-style store.
type StoreSpec struct {
	Type     StoreType
	Path     string
	Password string
}

// Spec describes where to find credentials. Exactly one of KeyStore or the
// KeyFile/CertFile pair may be set. TrustStore is independent of both.
type Spec struct {
	KeyStore   *StoreSpec
	KeyFile    string
	CertFile   string
	TrustStore *StoreSpec
}

func (s Spec) hasPair() bool {
	return s.KeyFile != "" || s.CertFile != ""
}

// Store reads credential sources from the filesystem.
type Store struct {
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

// NewStore returns a Store reading from the local filesystem.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{readFile: os.ReadFile, logger: logger}
}

// Resolve loads the key material and, when configured, the trust material
// described by spec.
func (s *Store) Resolve(spec Spec) (*Bundle, error) {
	bundle := &Bundle{}

	switch {
	case spec.KeyStore != nil && spec.hasPair():
		return nil, malformed("", ErrAmbiguousSource)
	case spec.KeyStore != nil:
		identity, err := s.loadKeyStore(*spec.KeyStore)
		if err != nil {
			return nil, err
		}
		bundle.Identity = identity
		bundle.KeySource = fmt.Sprintf("%s:%s", spec.KeyStore.Type, spec.KeyStore.Path)
	case spec.hasPair():
		identity, err := s.loadKeyPair(spec.CertFile, spec.KeyFile)
		if err != nil {
			return nil, err
		}
		bundle.Identity = identity
		bundle.KeySource = fmt.Sprintf("PEM:%s", spec.CertFile)
	default:
		return nil, malformed("", ErrNoKeyMaterial)
	}

	if spec.TrustStore != nil {
		trusted, err := s.loadTrustStore(*spec.TrustStore)
		if err != nil {
			return nil, err
		}

		pool := x509.NewCertPool()
		for _, c := range trusted {
			pool.AddCert(c)
		}
		bundle.TrustAnchors = pool
		bundle.Trusted = trusted
		bundle.TrustSource = fmt.Sprintf("%s:%s", spec.TrustStore.Type, spec.TrustStore.Path)
	}

	s.logger.Info("credentials resolved",
		"key_source", bundle.KeySource,
		"trust_source", bundle.TrustSource,
		"trusted", len(bundle.Trusted),
		"domains", bundle.Identity.Domains)

	return bundle, nil
}

// read maps a missing or unset path to NOT_FOUND. Any other read failure
// (permissions, a directory) means the source exists but cannot be used
// and is reported as MALFORMED.
func (s *Store) read(path string) ([]byte, error) {
	if path == "" {
		return nil, notFound(path, errors.New("empty path"))
	}

	data, err := s.readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(path, err)
		}
		return nil, malformed(path, err)
	}
	return data, nil
}

func (s *Store) loadKeyStore(spec StoreSpec) (*Certificate, error) {
	data, err := s.read(spec.Path)
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case TypePKCS12:
		return decodePKCS12KeyStore(spec.Path, data, spec.Password)
	case TypeJKS:
		return decodeJKSKeyStore(spec.Path, data, spec.Password)
	default:
		return nil, malformed(spec.Path, fmt.Errorf("%w for key store: %q", ErrUnsupportedType, spec.Type))
	}
}

func (s *Store) loadTrustStore(spec StoreSpec) ([]*x509.Certificate, error) {
	data, err := s.read(spec.Path)
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case TypePKCS12:
		return decodePKCS12TrustStore(spec.Path, data, spec.Password)
	case TypeJKS:
		return decodeJKSTrustStore(spec.Path, data, spec.Password)
	case TypePEM:
		return decodePEMCertificates(spec.Path, data)
	default:
		return nil, malformed(spec.Path, fmt.Errorf("%w for trust store: %q", ErrUnsupportedType, spec.Type))
	}
}

func (s *Store) loadKeyPair(certFile, keyFile string) (*Certificate, error) {
	certPEM, err := s.read(certFile)
	if err != nil {
		return nil, err
	}

	keyPEM, err := s.read(keyFile)
	if err != nil {
		return nil, err
	}

	return decodePEMKeyPair(certFile, certPEM, keyPEM)
}
