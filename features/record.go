package features

import (
	"errors"
)

// value used for numeric fields that could not be observed
const Sentinel = -1

var (
	ErrSourceUnavailable = errors.New("feature source unavailable")
	ErrSourceDisabled    = errors.New("feature source disabled")
)

type Lexical struct {
	URLLength       int  `json:"url_length"`
	NumDots         int  `json:"num_dots"`
	NumDigits       int  `json:"num_digits"`
	NumSpecialChars int  `json:"num_special_chars"`
	HasIPAddress    bool `json:"has_ip_address"`
	HasAtSymbol     bool `json:"has_at_symbol"`
	HasDoubleSlash  bool `json:"has_double_slash"`
	HasHexChars     bool `json:"has_hex_chars"`
}

type Domain struct {
	Age      int  `json:"domain_age"`
	Expiry   int  `json:"domain_expiry"`
	HasWhois bool `json:"has_whois"`
}

type Content struct {
	NumExternalLinks int  `json:"num_external_links"`
	HasForm          bool `json:"has_form"`
	HasPasswordField bool `json:"has_password_field"`
	NumIframes       int  `json:"num_iframes"`
	HasHiddenElement bool `json:"has_hidden_element"`
}

type TLS struct {
	HasSSL          bool    `json:"has_ssl"`
	Issuer          *string `json:"ssl_issuer"`
	DaysValid       int     `json:"ssl_days_valid"`
	ValidationLevel string  `json:"ssl_validation_level,omitempty"`
}

// Record holds every feature group for a single URL. All groups are always
// populated, either with observed values or with their sentinels.
type Record struct {
	Lexical Lexical `json:"lexical"`
	Domain  Domain  `json:"domain"`
	Content Content `json:"content"`
	TLS     TLS     `json:"tls"`
}

func DegradedDomain() Domain {
	return Domain{
		Age:      Sentinel,
		Expiry:   Sentinel,
		HasWhois: false,
	}
}

func DegradedContent() Content {
	return Content{
		NumExternalLinks: Sentinel,
		NumIframes:       Sentinel,
	}
}

func DegradedTLS() TLS {
	return TLS{
		HasSSL:    false,
		Issuer:    nil,
		DaysValid: Sentinel,
	}
}

// Outcome is the result of a single feature source. A degraded outcome still
// carries a complete value (the sentinel tuple) together with the cause.
type Outcome[T any] struct {
	Value T
	Cause error
}

func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func Degraded[T any](sentinel T, cause error) Outcome[T] {
	if cause == nil {
		cause = ErrSourceUnavailable
	}
	return Outcome[T]{Value: sentinel, Cause: cause}
}

func (o Outcome[T]) IsDegraded() bool {
	return o.Cause != nil
}
