package lexical

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aau-network-security/phishdetect/features"
)

var (
	ipHostRe = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	hexRe    = regexp.MustCompile(`%[0-9a-fA-F]{2}`)
)

func isPlain(r rune) bool {
	return r == '.' ||
		('a' <= r && r <= 'z') ||
		('A' <= r && r <= 'Z') ||
		('0' <= r && r <= '9')
}

// Analyze computes the structural features of a URL without any I/O.
// raw is the URL exactly as submitted, u is its parsed form.
func Analyze(raw string, u *url.URL) features.Lexical {
	res := features.Lexical{
		URLLength:   utf8.RuneCountInString(raw),
		NumDots:     strings.Count(raw, "."),
		HasAtSymbol: strings.Contains(raw, "@"),
		HasHexChars: hexRe.MatchString(raw),
	}

	for _, r := range raw {
		if unicode.IsDigit(r) {
			res.NumDigits++
		}
		if !isPlain(r) {
			res.NumSpecialChars++
		}
	}

	if u != nil {
		res.HasIPAddress = ipHostRe.MatchString(u.Host)
		res.HasDoubleSlash = strings.Contains(u.EscapedPath(), "//")
	}

	return res
}
