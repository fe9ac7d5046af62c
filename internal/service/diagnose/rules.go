package diagnose

import (
	"slices"
	"strings"

	"github.com/splax/peephost/internal/domain"
)

// Rule maps a log signature to a fix classification. A rule matches when
// any pattern occurs in the logs and, if Services is set, the service is
// one of them.
type Rule struct {
	Name       string
	Patterns   []string
	Services   []string
	FixType    domain.FixType
	Suggestion string
}

// Match reports whether the rule applies to the service logs.
func (r Rule) Match(service, logs string) bool {
	if len(r.Services) > 0 && !slices.Contains(r.Services, service) {
		return false
	}
	for _, p := range r.Patterns {
		if strings.Contains(logs, p) {
			return true
		}
	}
	return false
}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{
		Name:       "port-conflict",
		Patterns:   []string{"Address already in use"},
		FixType:    domain.FixPortConflict,
		Suggestion: "Port conflict detected. Check whether another service is using the mail ports (25, 143, 587, 993).",
	},
	{
		Name:       "permission-denied",
		Patterns:   []string{"Permission denied"},
		FixType:    domain.FixPermissionError,
		Suggestion: "Permission error. Check ownership of the configuration files and TLS certificates.",
	},
	{
		Name:       "ssl-config",
		Patterns:   []string{"SSL configuration error"},
		FixType:    domain.FixMissingSSL,
		Suggestion: "TLS certificate missing or path invalid. Make sure the certificate was issued.",
	},
	{
		Name:       "dovecot-missing-file",
		Patterns:   []string{"No such file or directory"},
		Services:   []string{"dovecot"},
		FixType:    domain.FixMissingSSL,
		Suggestion: "TLS certificate missing or path invalid. Make sure the certificate was issued.",
	},
	{
		Name:       "syntax-error",
		Patterns:   []string{"syntax error"},
		FixType:    domain.FixNone,
		Suggestion: "Configuration syntax error. A generated config file may be malformed.",
	},
}

// Classify returns the first rule matching the logs.
func Classify(rules []Rule, service, logs string) (Rule, bool) {
	for _, r := range rules {
		if r.Match(service, logs) {
			return r, true
		}
	}
	return Rule{}, false
}
