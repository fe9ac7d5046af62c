package diagnose

import (
	"context"
	"fmt"

	"github.com/splax/peephost/internal/domain"
)

// Remedy attempts to correct a diagnosed failure.
type Remedy func(ctx context.Context, diag domain.ServiceDiagnosis) error

// Remedies maps a classification to its automatic fix. Classifications
// without an entry are reported to the operator only.
type Remedies map[domain.FixType]Remedy

// ServiceRestartError is returned when a service stays down. It carries the
// most recent diagnosis.
type ServiceRestartError struct {
	Service    string
	Diagnosis  domain.ServiceDiagnosis
	Remediated bool
	Err        error
}

func (e *ServiceRestartError) Error() string {
	msg := fmt.Sprintf("service %s failed to restart", e.Service)
	if e.Remediated {
		msg += " after remediation"
	}
	if e.Diagnosis.Suggestion != "" {
		msg += ": " + e.Diagnosis.Suggestion
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *ServiceRestartError) Unwrap() error { return e.Err }

// Observer is notified about remediation attempts.
type Observer func(service string, fix domain.FixType, outcome string)

// Restart restarts service. On failure it diagnoses, applies the matching
// remedy at most once and retries the restart exactly once.
func (s *Service) Restart(ctx context.Context, service string, remedies Remedies, observe Observer) error {
	err := s.services.Restart(ctx, service)
	if err == nil {
		return nil
	}
	s.logger.Warn("service restart failed", "service", service, "error", err)
	diag := s.Diagnose(ctx, service)

	remedy, ok := remedies[diag.FixType]
	if !ok || remedy == nil {
		notify(observe, service, diag.FixType, "unremediable")
		return &ServiceRestartError{Service: service, Diagnosis: diag, Err: err}
	}

	s.logger.Info("applying remediation", "service", service, "fix", diag.FixType)
	if remedyErr := remedy(ctx, diag); remedyErr != nil {
		notify(observe, service, diag.FixType, "remedy_failed")
		return &ServiceRestartError{Service: service, Diagnosis: diag, Remediated: true, Err: fmt.Errorf("remediation: %w", remedyErr)}
	}
	if retryErr := s.services.Restart(ctx, service); retryErr != nil {
		notify(observe, service, diag.FixType, "retry_failed")
		return &ServiceRestartError{Service: service, Diagnosis: s.Diagnose(ctx, service), Remediated: true, Err: retryErr}
	}
	notify(observe, service, diag.FixType, "recovered")
	s.logger.Info("service recovered after remediation", "service", service, "fix", diag.FixType)
	return nil
}

func notify(observe Observer, service string, fix domain.FixType, outcome string) {
	if observe != nil {
		observe(service, fix, outcome)
	}
}
