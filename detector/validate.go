package detector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const MaxURLLength = 2048

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidScheme = errors.New("url scheme must be http or https")
	ErrEmptyHost     = errors.New("url has no host")
	ErrURLTooLong    = errors.New("url is too long")
)

type ValidationError struct {
	URL    string
	Reason error
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", err.URL, err.Reason)
}

func (err *ValidationError) Unwrap() error {
	return err.Reason
}

// ParseURL validates a submitted URL before any feature is extracted
func ParseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ValidationError{raw, ErrInvalidURL}
	}
	if len(trimmed) > MaxURLLength {
		return nil, &ValidationError{raw[:64] + "...", ErrURLTooLong}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &ValidationError{raw, errors.Wrap(ErrInvalidURL, err.Error())}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &ValidationError{raw, ErrInvalidScheme}
	}
	if u.Hostname() == "" {
		return nil, &ValidationError{raw, ErrEmptyHost}
	}
	return u, nil
}
