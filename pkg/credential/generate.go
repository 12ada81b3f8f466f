package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/sync/errgroup"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	defaultValidity = 365 * 24 * time.Hour
	organization    = "httpsfront"
)

// GenerateCA creates a self-signed certificate authority.
func GenerateCA(commonName string) (*Certificate, error) {
	template := baseTemplate(commonName)
	template.IsCA = true
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

	return issue(template, nil)
}

// GenerateLeaf creates a certificate for commonName signed by issuer. hosts
// become DNS or IP subject alternative names.
func GenerateLeaf(issuer *Certificate, commonName string, usage x509.ExtKeyUsage, hosts ...string) (*Certificate, error) {
	if issuer == nil {
		return nil, errors.New("issuer is required")
	}

	template := baseTemplate(commonName)
	template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	template.ExtKeyUsage = []x509.ExtKeyUsage{usage}
	addHosts(template, hosts)

	return issue(template, issuer)
}

// GenerateSelfSigned creates a self-signed server certificate for domains.
func GenerateSelfSigned(domains []string) (*Certificate, error) {
	if len(domains) == 0 {
		return nil, errors.New("at least one domain is required")
	}

	template := baseTemplate(domains[0])
	template.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	addHosts(template, domains)

	return issue(template, nil)
}

func baseTemplate(commonName string) *x509.Certificate {
	start := time.Now().Add(-time.Minute)

	return &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   commonName,
		},
		NotBefore:             start,
		NotAfter:              start.Add(defaultValidity),
		BasicConstraintsValid: true,
	}
}

func addHosts(template *x509.Certificate, hosts []string) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
			continue
		}
		template.DNSNames = append(template.DNSNames, h)
	}
}

func issue(template *x509.Certificate, issuer *Certificate) (*Certificate, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNum, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	template.SerialNumber = serialNum

	parent, signer := template, any(privateKey)
	if issuer != nil {
		parent, signer = issuer.Cert, issuer.TLSCert.PrivateKey
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, parent, &privateKey.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	chain := [][]byte{certDER}
	if issuer != nil {
		chain = append(chain, issuer.TLSCert.Certificate...)
	}

	return newCertificate(tls.Certificate{Certificate: chain, PrivateKey: privateKey}, cert), nil
}

// SaveCertificateToPEM writes the chain to certFile and the PKCS#8 key to
// keyFile. Neither file is left behind when either write fails.
func SaveCertificateToPEM(cert *Certificate, certFile, keyFile string) error {
	var g errgroup.Group

	g.Go(func() error {
		return saveChain(cert, certFile)
	})

	g.Go(func() error {
		return savePrivateKey(cert, keyFile)
	})

	if err := g.Wait(); err != nil {
		_ = os.Remove(certFile)
		_ = os.Remove(keyFile)
		return fmt.Errorf("failed to save certificate or key: %w", err)
	}

	return nil
}

func saveChain(cert *Certificate, certFile string) error {
	certOut, err := os.Create(certFile)
	if err != nil {
		return fmt.Errorf("failed to create certificate file: %w", err)
	}
	defer certOut.Close()

	for _, der := range cert.TLSCert.Certificate {
		if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
			return fmt.Errorf("failed to write certificate: %w", err)
		}
	}

	return nil
}

func savePrivateKey(cert *Certificate, keyFile string) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.TLSCert.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	keyOut, err := os.OpenFile(keyFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer keyOut.Close()

	if err := pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	return nil
}

// SaveTrustToPEM writes the leaf certificates of certs to path.
func SaveTrustToPEM(path string, certs ...*Certificate) error {
	var buf []byte
	for _, c := range certs {
		buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Cert.Raw})...)
	}
	return os.WriteFile(path, buf, 0644)
}

// WritePKCS12KeyStore writes cert, its chain and key as a PKCS#12 archive.
func WritePKCS12KeyStore(path, password string, cert *Certificate) error {
	var caCerts []*x509.Certificate
	for _, der := range cert.TLSCert.Certificate[1:] {
		ca, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("failed to parse chain certificate: %w", err)
		}
		caCerts = append(caCerts, ca)
	}

	data, err := pkcs12.Modern.Encode(cert.TLSCert.PrivateKey, cert.Cert, caCerts, password)
	if err != nil {
		return fmt.Errorf("failed to encode pkcs12 key store: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// WritePKCS12TrustStore writes certs as a PKCS#12 trust store.
func WritePKCS12TrustStore(path, password string, certs ...*Certificate) error {
	trusted := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		trusted = append(trusted, c.Cert)
	}

	data, err := pkcs12.Modern.EncodeTrustStore(trusted, password)
	if err != nil {
		return fmt.Errorf("failed to encode pkcs12 trust store: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteJKSKeyStore writes cert and its key under alias as a JKS archive.
// The entry is protected with the store password.
func WriteJKSKeyStore(path, password, alias string, cert *Certificate) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.TLSCert.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	chain := make([]keystore.Certificate, 0, len(cert.TLSCert.Certificate))
	for _, der := range cert.TLSCert.Certificate {
		chain = append(chain, keystore.Certificate{Type: "X509", Content: der})
	}

	ks := keystore.New()
	entry := keystore.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       keyDER,
		CertificateChain: chain,
	}
	if err := ks.SetPrivateKeyEntry(alias, entry, []byte(password)); err != nil {
		return fmt.Errorf("failed to add key entry: %w", err)
	}

	return storeJKS(path, password, ks, 0600)
}

// WriteJKSTrustStore writes certs as trusted entries of a JKS archive.
func WriteJKSTrustStore(path, password string, certs ...*Certificate) error {
	ks := keystore.New()
	for i, c := range certs {
		entry := keystore.TrustedCertificateEntry{
			CreationTime: time.Now(),
			Certificate:  keystore.Certificate{Type: "X509", Content: c.Cert.Raw},
		}
		if err := ks.SetTrustedCertificateEntry(fmt.Sprintf("trusted-%d", i), entry); err != nil {
			return fmt.Errorf("failed to add trusted entry: %w", err)
		}
	}

	return storeJKS(path, password, ks, 0644)
}

func storeJKS(path, password string, ks keystore.KeyStore, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create key store file: %w", err)
	}
	defer out.Close()

	if err := ks.Store(out, []byte(password)); err != nil {
		return fmt.Errorf("failed to write key store: %w", err)
	}
	return nil
}
