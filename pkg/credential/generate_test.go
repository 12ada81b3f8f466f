package credential_test

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/httpsfront/pkg/credential"
)

func TestGenerateSelfSigned(t *testing.T) {
	t.Run("multiple domains", func(t *testing.T) {
		domains := []string{"example.com", "www.example.com", "127.0.0.1"}
		cert, err := credential.GenerateSelfSigned(domains)
		require.NoError(t, err)

		assert.Equal(t, "example.com", cert.Cert.Subject.CommonName)
		assert.Equal(t, []string{"example.com", "www.example.com"}, cert.Cert.DNSNames)
		require.Len(t, cert.Cert.IPAddresses, 1)
		assert.Equal(t, "127.0.0.1", cert.Cert.IPAddresses[0].String())
		assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, cert.Cert.ExtKeyUsage)
	})

	t.Run("no domains", func(t *testing.T) {
		_, err := credential.GenerateSelfSigned(nil)
		assert.Error(t, err)
	})

	t.Run("validity period", func(t *testing.T) {
		cert, err := credential.GenerateSelfSigned([]string{"example.com"})
		require.NoError(t, err)

		now := time.Now()
		assert.True(t, cert.NotBefore.Before(now))
		assert.WithinDuration(t, now.Add(365*24*time.Hour), cert.NotAfter, 2*time.Minute)
	})
}

func TestGenerateLeaf_ChainsToCA(t *testing.T) {
	ca, err := credential.GenerateCA("root")
	require.NoError(t, err)
	assert.True(t, ca.Cert.IsCA)

	leaf, err := credential.GenerateLeaf(ca, "svc", x509.ExtKeyUsageServerAuth, "svc.local")
	require.NoError(t, err)
	assert.Len(t, leaf.TLSCert.Certificate, 2)

	roots := x509.NewCertPool()
	roots.AddCert(ca.Cert)
	_, err = leaf.Cert.Verify(x509.VerifyOptions{Roots: roots, DNSName: "svc.local"})
	assert.NoError(t, err)

	_, err = credential.GenerateLeaf(nil, "orphan", x509.ExtKeyUsageServerAuth)
	assert.Error(t, err)
}

func TestSaveCertificateToPEM(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	cert, err := credential.GenerateSelfSigned([]string{"example.com"})
	require.NoError(t, err)

	require.NoError(t, credential.SaveCertificateToPEM(cert, certFile, keyFile))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)
	assert.Equal(t, cert.TLSCert.Certificate[0], loaded.Certificate[0])
}

func TestSaveCertificateToPEM_CleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "missing", "key.pem")

	cert, err := credential.GenerateSelfSigned([]string{"example.com"})
	require.NoError(t, err)

	require.Error(t, credential.SaveCertificateToPEM(cert, certFile, keyFile))

	_, err = os.Stat(certFile)
	assert.True(t, os.IsNotExist(err), "cert file should be removed")
}
