// Package diagnose inspects failed services and applies bounded remediation.
package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/system"
)

const defaultTail = 50

// Service diagnoses services managed by a system.ServiceManager.
type Service struct {
	services system.ServiceManager
	rules    []Rule
	tail     int
	logger   *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithRules replaces the classification table.
func WithRules(rules []Rule) Option {
	return func(s *Service) { s.rules = rules }
}

// WithTail sets how many journal lines are inspected.
func WithTail(lines int) Option {
	return func(s *Service) {
		if lines > 0 {
			s.tail = lines
		}
	}
}

// New returns a diagnosis service using DefaultRules.
func New(services system.ServiceManager, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{services: services, rules: DefaultRules, tail: defaultTail, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Diagnose captures status and recent logs for service and classifies them.
func (s *Service) Diagnose(ctx context.Context, service string) domain.ServiceDiagnosis {
	s.logger.Info("diagnosing service failure", "service", service)
	status := s.services.Status(ctx, service)
	logs, err := s.services.Logs(ctx, service, s.tail)
	if err != nil {
		logs = fmt.Sprintf("failed to fetch logs: %v", err)
	}
	diag := domain.ServiceDiagnosis{Service: service, Status: status, Logs: logs, FixType: domain.FixNone}
	if rule, ok := Classify(s.rules, service, logs); ok {
		diag.FixType = rule.FixType
		diag.Suggestion = rule.Suggestion
		diag.Rule = rule.Name
	}
	return diag
}

// Format renders a diagnosis for an operator.
func Format(d domain.ServiceDiagnosis) string {
	var b strings.Builder
	b.WriteString("=== SERVICE FAILURE DIAGNOSIS ===\n")
	fmt.Fprintf(&b, "Service: %s\n", d.Service)
	fmt.Fprintf(&b, "Status:  %s\n", d.Status)
	b.WriteString("--- Recent Logs ---\n")
	b.WriteString(strings.TrimRight(d.Logs, "\n"))
	b.WriteString("\n-------------------\n")
	if d.Suggestion != "" {
		fmt.Fprintf(&b, "Suggestion: %s\n", d.Suggestion)
	} else {
		b.WriteString("No specific fix found. Review the logs above.\n")
	}
	b.WriteString("=================================\n")
	return b.String()
}
