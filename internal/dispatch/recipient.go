package dispatch

import (
	"regexp"
	"strings"
)

// UserServer is the address domain for individual accounts.
const UserServer = "s.whatsapp.net"

// legacyUserServer is accepted on input and rewritten to UserServer.
const legacyUserServer = "c.us"

var addressPattern = regexp.MustCompile(`^\d+@s\.whatsapp\.net$`)

// NormalizeRecipient converts a phone number, or an address in either
// account domain, into the network's address form and validates it.
func NormalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	switch {
	case strings.HasSuffix(r, "@"+legacyUserServer):
		r = strings.TrimSuffix(r, legacyUserServer) + UserServer
	case !strings.Contains(r, "@"):
		r += "@" + UserServer
	}
	if !addressPattern.MatchString(r) {
		return "", ErrInvalidRecipientFormat
	}
	return r, nil
}
