package domain

import (
	"fmt"
	"net"
	"strings"

	"github.com/weppos/publicsuffix-go/net/publicsuffix"
)

type Policy string

const (
	// joins the last two dot-separated labels of the host
	LastTwoLabels Policy = "last-two-labels"
	// uses the public suffix list (eTLD+1)
	PublicSuffix Policy = "public-suffix"
)

type UnknownPolicyErr struct {
	Policy Policy
}

func (err UnknownPolicyErr) Error() string {
	return fmt.Sprintf("unknown registrable domain policy: %s", err.Policy)
}

func (p Policy) IsValid() error {
	switch p {
	case LastTwoLabels, PublicSuffix, "":
		return nil
	}
	return UnknownPolicyErr{p}
}

// Normalize lowercases a host name and strips a trailing dot and port
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}

// Registrable derives the registrable domain of a host under the given policy.
// The resolver cache and the trusted-domain check must use the same policy.
func Registrable(host string, p Policy) string {
	host = Normalize(host)
	if p == PublicSuffix && net.ParseIP(host) == nil {
		if apex, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			return apex
		}
	}
	return lastTwo(host)
}

func lastTwo(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
