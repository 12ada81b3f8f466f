package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/httpsfront/pkg/conf"
	"github.com/utkarsh5026/httpsfront/pkg/credential"
)

func TestGenerateCredentials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateCredentials(dir, "secret", []string{"localhost"}))

	store := credential.NewStore(nil)
	for _, typ := range []credential.StoreType{credential.TypePKCS12, credential.TypeJKS} {
		ext := map[credential.StoreType]string{credential.TypePKCS12: "p12", credential.TypeJKS: "jks"}[typ]

		b, err := store.Resolve(credential.Spec{
			KeyStore:   &credential.StoreSpec{Type: typ, Path: filepath.Join(dir, "keystore."+ext), Password: "secret"},
			TrustStore: &credential.StoreSpec{Type: typ, Path: filepath.Join(dir, "truststore."+ext), Password: "secret"},
		})
		require.NoError(t, err, typ)
		assert.NoError(t, b.Validate(true))
	}

	assert.Error(t, generateCredentials(dir, "secret", nil))
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(conf.LogConfig{Level: "debug", Format: "json"})
	assert.NoError(t, err)

	_, err = newLogger(conf.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
}
