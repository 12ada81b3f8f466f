// probe connects to a running front end with a client certificate and
// prints the session the server saw.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

var (
	addr     = flag.String("addr", "https://localhost:8443", "Front end base URL")
	caFile   = flag.String("ca", "certs/ca.pem", "CA used to verify the server")
	certFile = flag.String("cert", "certs/client.pem", "Client certificate (empty to send none)")
	keyFile  = flag.String("key", "certs/client-key.pem", "Client private key")
	path     = flag.String("path", "/session", "Request path")
	h2       = flag.Bool("h2", true, "Offer h2 through ALPN")
)

func main() {
	flag.Parse()

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if *caFile != "" {
		pem, err := os.ReadFile(*caFile)
		if err != nil {
			log.Fatalf("read CA: %v", err)
		}
		cfg.RootCAs = x509.NewCertPool()
		if !cfg.RootCAs.AppendCertsFromPEM(pem) {
			log.Fatalf("no certificates in %s", *caFile)
		}
	}

	if *certFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			log.Fatalf("load client certificate: %v", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	client := &http.Client{
		Transport: &http.Transport{TLSClientConfig: cfg, ForceAttemptHTTP2: *h2},
		Timeout:   10 * time.Second,
	}

	start := time.Now()
	resp, err := client.Get(*addr + *path)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Printf("%s %s in %v", resp.Proto, resp.Status, time.Since(start))
	if resp.TLS != nil {
		log.Printf("tls %s, alpn %q", tls.VersionName(resp.TLS.Version), resp.TLS.NegotiatedProtocol)
	}
	fmt.Println(string(body))
}
