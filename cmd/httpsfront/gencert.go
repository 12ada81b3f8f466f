package main

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/utkarsh5026/httpsfront/pkg/credential"
)

var (
	gencertDir      string
	gencertPassword string
	gencertHosts    []string
)

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Write a test CA with server and client credentials",
	Long: `gencert writes a fresh CA plus a server and a client certificate signed
by it. The server material is written as PEM, PKCS#12 and JKS so any
key_store type can be tried. Not for production use.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateCredentials(gencertDir, gencertPassword, gencertHosts)
	},
}

func init() {
	gencertCmd.Flags().StringVar(&gencertDir, "dir", "certs", "Output directory")
	gencertCmd.Flags().StringVar(&gencertPassword, "password", "changeit", "Store password")
	gencertCmd.Flags().StringSliceVar(&gencertHosts, "host", []string{"localhost", "127.0.0.1"}, "Server DNS names or IPs")
	rootCmd.AddCommand(gencertCmd)
}

func generateCredentials(dir, password string, hosts []string) error {
	if len(hosts) == 0 {
		return fmt.Errorf("at least one --host is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := func(name string) string { return filepath.Join(dir, name) }

	ca, err := credential.GenerateCA("httpsfront test CA")
	if err != nil {
		return err
	}
	srv, err := credential.GenerateLeaf(ca, hosts[0], x509.ExtKeyUsageServerAuth, hosts...)
	if err != nil {
		return err
	}
	client, err := credential.GenerateLeaf(ca, "client", x509.ExtKeyUsageClientAuth)
	if err != nil {
		return err
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"ca.pem", func() error { return credential.SaveTrustToPEM(path("ca.pem"), ca) }},
		{"server.pem", func() error { return credential.SaveCertificateToPEM(srv, path("server.pem"), path("server-key.pem")) }},
		{"client.pem", func() error { return credential.SaveCertificateToPEM(client, path("client.pem"), path("client-key.pem")) }},
		{"keystore.p12", func() error { return credential.WritePKCS12KeyStore(path("keystore.p12"), password, srv) }},
		{"truststore.p12", func() error { return credential.WritePKCS12TrustStore(path("truststore.p12"), password, ca) }},
		{"keystore.jks", func() error { return credential.WriteJKSKeyStore(path("keystore.jks"), password, "server", srv) }},
		{"truststore.jks", func() error { return credential.WriteJKSTrustStore(path("truststore.jks"), password, ca) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("writing %s: %w", s.name, err)
		}
		fmt.Println("wrote", path(s.name))
	}
	return nil
}
