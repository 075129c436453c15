package whois

import (
	"context"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"github.com/pkg/errors"
)

var (
	NoDatesErr = errors.New("no parsable dates")

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05 MST",
		"2006-01-02",
		"02-Jan-2006",
		"02-Jan-2006 15:04:05 MST",
		"2006.01.02",
		"2006/01/02",
		"02.01.2006",
		"January 2 2006",
	}
)

// Record is the subset of a registration record used for features. Registries
// may report more than one creation or expiration date.
type Record struct {
	DomainName      string
	CreationDates   []time.Time
	ExpirationDates []time.Time
}

type Registry interface {
	Lookup(ctx context.Context, domain string) (*Record, error)
}

type whoisRegistry struct {
	client *whois.Client
}

type lookupResult struct {
	raw string
	err error
}

func (r *whoisRegistry) Lookup(ctx context.Context, domain string) (*Record, error) {
	resc := make(chan lookupResult, 1)
	go func() {
		raw, err := r.client.Whois(domain)
		resc <- lookupResult{raw, err}
	}()

	var res lookupResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-resc:
	}
	if res.err != nil {
		return nil, errors.Wrap(res.err, "whois query")
	}

	info, err := whoisparser.Parse(res.raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse whois response")
	}
	if info.Domain == nil {
		return &Record{}, nil
	}

	return &Record{
		DomainName:      info.Domain.Domain,
		CreationDates:   ParseDates(info.Domain.CreatedDate),
		ExpirationDates: ParseDates(info.Domain.ExpirationDate),
	}, nil
}

func NewRegistry(timeout time.Duration) Registry {
	c := whois.NewClient()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &whoisRegistry{
		client: c,
	}
}

// ParseDates parses a (possibly comma separated) list of dates in the formats
// commonly returned by registries
func ParseDates(s string) []time.Time {
	var res []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if t, err := parseDate(part); err == nil {
			res = append(res, t)
		}
	}
	return res
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NoDatesErr
}
