package verdict

import (
	"strings"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/domain"
)

const (
	DefaultThreshold = 0.8
	ReasonTrusted    = "whitelisted"
)

var DefaultTrusted = []string{
	"youtube.com",
	"google.com",
	"gmail.com",
	"facebook.com",
	"twitter.com",
	"github.com",
	"amazon.com",
	"microsoft.com",
	"linkedin.com",
}

type Decision struct {
	IsPhishing bool
	Confidence float64
	Trusted    bool
}

// Gate turns classifier output into a final decision. Trusted registrable
// domains bypass the classifier and positive predictions below the
// threshold are reported as benign.
type Gate struct {
	trusted   map[string]bool
	threshold float64
	policy    domain.Policy
}

func NewGate(trusted []string, threshold float64, policy domain.Policy) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	g := Gate{
		trusted:   make(map[string]bool),
		threshold: threshold,
		policy:    policy,
	}
	for _, d := range trusted {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			g.trusted[d] = true
		}
	}
	return &g
}

func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Trusted reports whether the registrable domain of host is trusted
func (g *Gate) Trusted(host string) bool {
	return g.trusted[domain.Registrable(host, g.policy)]
}

func (g *Gate) TrustedDecision() Decision {
	return Decision{
		IsPhishing: false,
		Confidence: 0,
		Trusted:    true,
	}
}

func (g *Gate) Apply(p classifier.Prediction) Decision {
	return Decision{
		IsPhishing: p.IsPhishing() && p.Confidence >= g.threshold,
		Confidence: p.Confidence,
	}
}
