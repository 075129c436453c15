package verdict

import (
	"github.com/aau-network-security/phishdetect/features"
)

const (
	RiskIPAddress      = "URL contains IP address instead of domain name"
	RiskAtSymbol       = "URL contains @ symbol"
	RiskDoubleSlash    = "URL path contains double slash"
	RiskYoungDomain    = "Domain is less than 30 days old"
	RiskNoWhois        = "No WHOIS information available"
	RiskPasswordNoSSL  = "Password field present without SSL"
	RiskHiddenElements = "Page contains hidden elements"
	RiskIframes        = "Page contains iframes"
	RiskNoSSL          = "No SSL certificate"
	RiskSSLExpiring    = "SSL certificate expires soon"
)

type rule struct {
	message string
	applies func(features.Record) bool
}

func known(v int) bool {
	return v != features.Sentinel
}

// rules are evaluated in order, sentinel values never trigger a rule that
// depends on the sentinel-bearing field
var rules = []rule{
	{RiskIPAddress, func(r features.Record) bool { return r.Lexical.HasIPAddress }},
	{RiskAtSymbol, func(r features.Record) bool { return r.Lexical.HasAtSymbol }},
	{RiskDoubleSlash, func(r features.Record) bool { return r.Lexical.HasDoubleSlash }},
	{RiskYoungDomain, func(r features.Record) bool { return known(r.Domain.Age) && r.Domain.Age < 30 }},
	{RiskNoWhois, func(r features.Record) bool { return known(r.Domain.Age) && !r.Domain.HasWhois }},
	{RiskPasswordNoSSL, func(r features.Record) bool { return r.Content.HasPasswordField && !r.TLS.HasSSL }},
	{RiskHiddenElements, func(r features.Record) bool { return r.Content.HasHiddenElement }},
	{RiskIframes, func(r features.Record) bool { return known(r.Content.NumIframes) && r.Content.NumIframes > 0 }},
	{RiskNoSSL, func(r features.Record) bool { return !r.TLS.HasSSL }},
	{RiskSSLExpiring, func(r features.Record) bool {
		return r.TLS.HasSSL && known(r.TLS.DaysValid) && r.TLS.DaysValid < 30
	}},
}

// Explain lists the human readable risk factors present in a record
func Explain(rec features.Record) []string {
	res := []string{}
	for _, r := range rules {
		if r.applies(rec) {
			res = append(res, r.message)
		}
	}
	return res
}
