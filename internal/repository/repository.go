package repository

import (
	"context"
	"sort"

	"github.com/splax/peephost/internal/domain"
)

// Registry is the full set of projects keyed by name.
type Registry map[string]domain.ProjectRecord

// ProjectStore persists project records. Update is the transaction boundary:
// fn sees the current registry and its mutations are written back atomically
// while the store is locked against other writers.
type ProjectStore interface {
	Get(ctx context.Context, name string) (domain.ProjectRecord, error)
	Put(ctx context.Context, name string, record domain.ProjectRecord) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) (Registry, error)
	Update(ctx context.Context, fn func(Registry) error) error
}

// Names returns the registered project names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns the records sorted by name with Name populated.
func (r Registry) Records() []domain.ProjectRecord {
	out := make([]domain.ProjectRecord, 0, len(r))
	for _, name := range r.Names() {
		rec := r[name]
		rec.Name = name
		out = append(out, rec)
	}
	return out
}

// NextAvailablePort returns the lowest port >= base not used by any record,
// counting both site and webmail ports.
func NextAvailablePort(r Registry, base int) int {
	used := make(map[int]struct{}, len(r)*2)
	for _, rec := range r {
		if rec.Port > 0 {
			used[rec.Port] = struct{}{}
		}
		if rec.WebmailPort > 0 {
			used[rec.WebmailPort] = struct{}{}
		}
	}
	port := base
	for {
		if _, taken := used[port]; !taken {
			return port
		}
		port++
	}
}

// FindByDomain returns the name of the project owning domain, if any.
func FindByDomain(r Registry, domainName string) (string, bool) {
	if domainName == "" {
		return "", false
	}
	for name, rec := range r {
		if rec.Domain == domainName {
			return name, true
		}
	}
	return "", false
}
