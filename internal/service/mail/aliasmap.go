package mail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/splax/peephost/internal/domain"
)

// ErrMailUserExists is returned when an address or system user is already mapped.
var ErrMailUserExists = errors.New("mail: address already mapped")

type aliasLine struct {
	raw     string
	mapping *domain.MailUserMapping
}

// AliasMap is the postfix virtual alias table. Lines that are not mappings
// (comments, blanks) are preserved verbatim.
type AliasMap struct {
	lines []aliasLine
}

// ParseAliasMap reads the virtual map format: one "address target" pair per line.
func ParseAliasMap(content string) AliasMap {
	var m AliasMap
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return m
	}
	for _, raw := range strings.Split(content, "\n") {
		line := aliasLine{raw: raw}
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				line.mapping = &domain.MailUserMapping{Email: fields[0], SystemUser: fields[len(fields)-1]}
			}
		}
		m.lines = append(m.lines, line)
	}
	return m
}

// Mappings returns the parsed address mappings in file order.
func (m AliasMap) Mappings() []domain.MailUserMapping {
	var out []domain.MailUserMapping
	for _, l := range m.lines {
		if l.mapping != nil {
			out = append(out, *l.mapping)
		}
	}
	return out
}

// Lookup returns the mapping for email.
func (m AliasMap) Lookup(email string) (domain.MailUserMapping, bool) {
	for _, l := range m.lines {
		if l.mapping != nil && strings.EqualFold(l.mapping.Email, email) {
			return *l.mapping, true
		}
	}
	return domain.MailUserMapping{}, false
}

// Add appends mapping. An address or system user already present is rejected.
func (m AliasMap) Add(mapping domain.MailUserMapping) (AliasMap, error) {
	for _, existing := range m.Mappings() {
		if strings.EqualFold(existing.Email, mapping.Email) || existing.SystemUser == mapping.SystemUser {
			return m, fmt.Errorf("%s: %w", mapping.Email, ErrMailUserExists)
		}
	}
	out := AliasMap{lines: append(append([]aliasLine(nil), m.lines...), aliasLine{
		raw:     fmt.Sprintf("%s    %s", mapping.Email, mapping.SystemUser),
		mapping: &mapping,
	})}
	return out, nil
}

// RemoveBySuffix drops every mapping whose system user ends with suffix and
// returns the remaining map together with the removed mappings.
func (m AliasMap) RemoveBySuffix(suffix string) (AliasMap, []domain.MailUserMapping) {
	return m.filter(func(mp domain.MailUserMapping) bool {
		return strings.HasSuffix(mp.SystemUser, suffix)
	})
}

// RemoveEmail drops the mapping for email.
func (m AliasMap) RemoveEmail(email string) (AliasMap, []domain.MailUserMapping) {
	return m.filter(func(mp domain.MailUserMapping) bool {
		return strings.EqualFold(mp.Email, email)
	})
}

func (m AliasMap) filter(drop func(domain.MailUserMapping) bool) (AliasMap, []domain.MailUserMapping) {
	var (
		out     AliasMap
		removed []domain.MailUserMapping
	)
	for _, l := range m.lines {
		if l.mapping != nil && drop(*l.mapping) {
			removed = append(removed, *l.mapping)
			continue
		}
		out.lines = append(out.lines, l)
	}
	return out, removed
}

// String renders the map with a trailing newline.
func (m AliasMap) String() string {
	if len(m.lines) == 0 {
		return ""
	}
	raws := make([]string, len(m.lines))
	for i, l := range m.lines {
		raws[i] = l.raw
	}
	return strings.Join(raws, "\n") + "\n"
}
