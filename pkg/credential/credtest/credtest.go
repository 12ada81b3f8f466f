// Package credtest builds throwaway certificate authorities, key stores and
// trust stores for tests.
package credtest

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/httpsfront/pkg/credential"
)

// Password protects every archive the fixture writes.
const Password = "wibble"

// Fixture is a trusted CA with a server and a client certificate, plus a
// second, untrusted CA with its own client certificate.
type Fixture struct {
	Dir string

	CA     *credential.Certificate
	Server *credential.Certificate
	Client *credential.Certificate

	RogueCA     *credential.Certificate
	RogueClient *credential.Certificate

	ServerCertFile string
	ServerKeyFile  string
	CAFile         string
}

// New writes a complete fixture under t.TempDir().
func New(t testing.TB) *Fixture {
	t.Helper()

	f := &Fixture{Dir: t.TempDir()}

	var err error
	f.CA, err = credential.GenerateCA("test-ca")
	require.NoError(t, err)

	f.Server, err = credential.GenerateLeaf(f.CA, "localhost", x509.ExtKeyUsageServerAuth, "localhost", "127.0.0.1")
	require.NoError(t, err)

	f.Client, err = credential.GenerateLeaf(f.CA, "client", x509.ExtKeyUsageClientAuth)
	require.NoError(t, err)

	f.RogueCA, err = credential.GenerateCA("rogue-ca")
	require.NoError(t, err)

	f.RogueClient, err = credential.GenerateLeaf(f.RogueCA, "rogue", x509.ExtKeyUsageClientAuth)
	require.NoError(t, err)

	f.ServerCertFile = f.Path("server-cert.pem")
	f.ServerKeyFile = f.Path("server-key.pem")
	require.NoError(t, credential.SaveCertificateToPEM(f.Server, f.ServerCertFile, f.ServerKeyFile))

	f.CAFile = f.Path("ca.pem")
	require.NoError(t, credential.SaveTrustToPEM(f.CAFile, f.CA))

	require.NoError(t, credential.WritePKCS12KeyStore(f.Path("server-keystore.p12"), Password, f.Server))
	require.NoError(t, credential.WritePKCS12TrustStore(f.Path("server-truststore.p12"), Password, f.CA))
	require.NoError(t, credential.WriteJKSKeyStore(f.Path("server-keystore.jks"), Password, "server", f.Server))
	require.NoError(t, credential.WriteJKSTrustStore(f.Path("server-truststore.jks"), Password, f.CA))

	return f
}

// Path joins name onto the fixture directory.
func (f *Fixture) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// KeyStore returns the server key store of the given type.
func (f *Fixture) KeyStore(typ credential.StoreType) *credential.StoreSpec {
	name := "server-keystore.p12"
	if typ == credential.TypeJKS {
		name = "server-keystore.jks"
	}
	return &credential.StoreSpec{Type: typ, Path: f.Path(name), Password: Password}
}

// TrustStore returns the server trust store of the given type. It trusts
// only the fixture CA.
func (f *Fixture) TrustStore(typ credential.StoreType) *credential.StoreSpec {
	switch typ {
	case credential.TypeJKS:
		return &credential.StoreSpec{Type: typ, Path: f.Path("server-truststore.jks"), Password: Password}
	case credential.TypePEM:
		return &credential.StoreSpec{Type: typ, Path: f.CAFile}
	default:
		return &credential.StoreSpec{Type: typ, Path: f.Path("server-truststore.p12"), Password: Password}
	}
}

// Bundle resolves the PKCS#12 key store and trust store.
func (f *Fixture) Bundle(t testing.TB) *credential.Bundle {
	t.Helper()

	b, err := credential.NewStore(nil).Resolve(credential.Spec{
		KeyStore:   f.KeyStore(credential.TypePKCS12),
		TrustStore: f.TrustStore(credential.TypePKCS12),
	})
	require.NoError(t, err)
	return b
}

// ClientConfig returns a client TLS config that trusts the server. cert
// is presented to the server when non-nil.
func (f *Fixture) ClientConfig(cert *credential.Certificate, nextProtos ...string) *tls.Config {
	roots := x509.NewCertPool()
	roots.AddCert(f.CA.Cert)

	cfg := &tls.Config{
		RootCAs:    roots,
		ServerName: "localhost",
		NextProtos: nextProtos,
	}
	if cert != nil {
		cfg.Certificates = []tls.Certificate{cert.TLSCert}
	}
	return cfg
}
