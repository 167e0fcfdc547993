package identity

import (
	"strings"
)

// Format is the shape of a login name presented to the directory.
type Format int

const (
	FormatUnclassified Format = iota // Pre-qualified name used verbatim
	FormatUPN                        // user@domain
	FormatDownLevel                  // DOMAIN\user
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatUPN:
		return "UPN"
	case FormatDownLevel:
		return "DOWN_LEVEL"
	default:
		return "UNCLASSIFIED"
	}
}

// DomainSeparator separates the NetBIOS domain from the account name in a down-level logon name.
const DomainSeparator = `\`

// Candidate is one concrete login name to attempt against the directory.
type Candidate struct {
	Name   string
	Format Format
}

// IsPreQualified reports whether the raw username already names a domain and must be
// passed to the directory untouched.
func IsPreQualified(raw string) bool {
	return strings.Contains(raw, "@") || strings.Contains(raw, DomainSeparator)
}

// Classify returns the format of a login name.
func Classify(name string) Format {
	switch {
	case strings.Contains(name, "@"):
		return FormatUPN
	case strings.Contains(name, DomainSeparator):
		return FormatDownLevel
	default:
		return FormatUnclassified
	}
}

// Generator dresses a bare username into the login names worth trying.
type Generator struct {
	upnSuffix     string
	netbiosDomain string
}

// NewGenerator creates a candidate generator for a single domain.
func NewGenerator(upnSuffix, netbiosDomain string) *Generator {
	return &Generator{
		upnSuffix:     strings.TrimPrefix(upnSuffix, "@"),
		netbiosDomain: strings.TrimSuffix(netbiosDomain, DomainSeparator),
	}
}

// Generate returns the ordered, duplicate-free candidates for a raw username.
//
// A pre-qualified username yields itself, unclassified. Anything else yields the UPN
// form followed by the down-level form.
func (g *Generator) Generate(raw string) []Candidate {
	if IsPreQualified(raw) {
		return []Candidate{{Name: raw, Format: FormatUnclassified}}
	}

	return dedupe([]Candidate{
		g.Build(raw, FormatUPN),
		g.Build(raw, FormatDownLevel),
	})
}

// Build produces the candidate for a raw username in the given format.
// Pre-qualified usernames are always returned verbatim.
func (g *Generator) Build(raw string, format Format) Candidate {
	if IsPreQualified(raw) {
		return Candidate{Name: raw, Format: FormatUnclassified}
	}

	switch format {
	case FormatUPN:
		return Candidate{Name: raw + "@" + g.upnSuffix, Format: FormatUPN}
	case FormatDownLevel:
		return Candidate{Name: g.netbiosDomain + DomainSeparator + raw, Format: FormatDownLevel}
	default:
		return Candidate{Name: raw, Format: FormatUnclassified}
	}
}

func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Names returns the login names of the candidates in order.
func Names(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}
