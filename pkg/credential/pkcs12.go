package credential

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"software.sslmate.com/src/go-pkcs12"
)

func decodePKCS12KeyStore(path string, data []byte, password string) (*Certificate, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, pkcs12Error(path, err)
	}

	if err := keyMatches(leaf, key); err != nil {
		return nil, malformed(path, err)
	}

	chain := make([][]byte, 0, len(caCerts)+1)
	chain = append(chain, leaf.Raw)
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return newCertificate(tls.Certificate{Certificate: chain, PrivateKey: key}, leaf), nil
}

func decodePKCS12TrustStore(path string, data []byte, password string) ([]*x509.Certificate, error) {
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, pkcs12Error(path, err)
	}
	if len(certs) == 0 {
		return nil, malformed(path, ErrNoCertificates)
	}
	return certs, nil
}

func pkcs12Error(path string, err error) *Error {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return badPassphrase(path, err)
	}
	return malformed(path, err)
}
