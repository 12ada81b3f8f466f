package credential

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

func decodePEMKeyPair(path string, certPEM, keyPEM []byte) (*Certificate, error) {
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, malformed(path, fmt.Errorf("failed to load key pair: %w", err))
	}

	leaf, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, malformed(path, fmt.Errorf("failed to parse x509 certificate: %w", err))
	}

	return newCertificate(tlsCert, leaf), nil
}

func decodePEMCertificates(path string, data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("failed to parse x509 certificate: %w", err))
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, malformed(path, ErrNoCertificates)
	}
	return certs, nil
}

// keyMatches reports whether key is the private half of leaf's public key.
func keyMatches(leaf *x509.Certificate, key crypto.PrivateKey) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", key)
	}

	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(signer.Public()) {
		return ErrKeyMismatch
	}
	return nil
}
