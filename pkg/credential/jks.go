package credential

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"slices"
	"strings"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

func loadJKS(path string, data []byte, password string) (keystore.KeyStore, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		// keystore-go v4.5.0 has no sentinel for a wrong store password; it
		// fails the integrity check with "got invalid digest". The wrong
		// jks password case in TestResolve_Errors guards this on upgrades.
		if strings.Contains(err.Error(), "got invalid digest") {
			return ks, badPassphrase(path, err)
		}
		return ks, malformed(path, err)
	}
	return ks, nil
}

func decodeJKSKeyStore(path string, data []byte, password string) (*Certificate, error) {
	ks, err := loadJKS(path, data, password)
	if err != nil {
		return nil, err
	}

	aliases := ks.Aliases()
	slices.Sort(aliases)

	for _, alias := range aliases {
		if !ks.IsPrivateKeyEntry(alias) {
			continue
		}

		entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
		if err != nil {
			return nil, badPassphrase(path, fmt.Errorf("entry %q: %w", alias, err))
		}
		if len(entry.CertificateChain) == 0 {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, ErrNoCertificates))
		}

		key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, err))
		}

		chain := make([][]byte, 0, len(entry.CertificateChain))
		for _, c := range entry.CertificateChain {
			chain = append(chain, c.Content)
		}

		leaf, err := x509.ParseCertificate(chain[0])
		if err != nil {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, err))
		}

		if err := keyMatches(leaf, key); err != nil {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, err))
		}

		return newCertificate(tls.Certificate{Certificate: chain, PrivateKey: key}, leaf), nil
	}

	return nil, malformed(path, ErrNoPrivateKey)
}

func decodeJKSTrustStore(path string, data []byte, password string) ([]*x509.Certificate, error) {
	ks, err := loadJKS(path, data, password)
	if err != nil {
		return nil, err
	}

	aliases := ks.Aliases()
	slices.Sort(aliases)

	var certs []*x509.Certificate
	for _, alias := range aliases {
		if !ks.IsTrustedCertificateEntry(alias) {
			continue
		}

		entry, err := ks.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, err))
		}

		cert, err := x509.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("entry %q: %w", alias, err))
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, malformed(path, ErrNoCertificates)
	}
	return certs, nil
}
