package transport

import (
	"fmt"
	"strings"
)

// ClientAuth is the server's policy for client certificates.
type ClientAuth int

const (
	// ClientAuthNone never asks the peer for a certificate.
	ClientAuthNone ClientAuth = iota
	// ClientAuthRequested asks for a certificate but accepts peers that
	// present none. A certificate that is presented is verified when trust
	// anchors are configured.
	ClientAuthRequested
	// ClientAuthRequired rejects peers without a certificate that chains to
	// a trust anchor.
	ClientAuthRequired
)

func (c ClientAuth) String() string {
	switch c {
	case ClientAuthNone:
		return "NONE"
	case ClientAuthRequested:
		return "REQUESTED"
	case ClientAuthRequired:
		return "REQUIRED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// ParseClientAuth accepts none, request(ed) and require(d).
func ParseClientAuth(s string) (ClientAuth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ClientAuthNone, nil
	case "request", "requested", "want":
		return ClientAuthRequested, nil
	case "require", "required", "need":
		return ClientAuthRequired, nil
	default:
		return 0, fmt.Errorf("unknown client auth type: %s", s)
	}
}
