package diagnose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/domain"
)

type stubServices struct {
	restartErrs []error
	restarts    int
	status      string
	logs        string
	logsErr     error
}

func (s *stubServices) Restart(context.Context, string) error {
	s.restarts++
	if len(s.restartErrs) == 0 {
		return nil
	}
	err := s.restartErrs[0]
	if len(s.restartErrs) > 1 {
		s.restartErrs = s.restartErrs[1:]
	}
	return err
}

func (s *stubServices) Reload(context.Context, string) error { return nil }

func (s *stubServices) Status(context.Context, string) string { return s.status }

func (s *stubServices) Logs(context.Context, string, int) (string, error) {
	return s.logs, s.logsErr
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		name    string
		service string
		logs    string
		fix     domain.FixType
		matched bool
	}{
		{"port conflict", "postfix", "fatal: bind 0.0.0.0 port 25: Address already in use", domain.FixPortConflict, true},
		{"port beats permission", "postfix", "Permission denied\nAddress already in use", domain.FixPortConflict, true},
		{"permission", "dovecot", "open(/etc/ssl/key) failed: Permission denied", domain.FixPermissionError, true},
		{"ssl any service", "postfix", "SSL configuration error", domain.FixMissingSSL, true},
		{"missing file dovecot", "dovecot", "ssl_cert: Can't open file: No such file or directory", domain.FixMissingSSL, true},
		{"missing file postfix", "postfix", "No such file or directory", domain.FixNone, false},
		{"syntax", "postfix", "syntax error in main.cf", domain.FixNone, true},
		{"unknown", "nginx", "everything is fine", domain.FixNone, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, ok := Classify(DefaultRules, tc.service, tc.logs)
			assert.Equal(t, tc.matched, ok)
			if ok {
				assert.Equal(t, tc.fix, rule.FixType)
			}
		})
	}
}

func TestDiagnoseFillsSuggestion(t *testing.T) {
	svc := New(&stubServices{status: "failed", logs: "syntax error near line 3"}, discard())
	diag := svc.Diagnose(context.Background(), "postfix")
	assert.Equal(t, "postfix", diag.Service)
	assert.Equal(t, "failed", diag.Status)
	assert.Equal(t, domain.FixNone, diag.FixType)
	assert.False(t, diag.Actionable())
	assert.NotEmpty(t, diag.Suggestion)
	assert.Equal(t, "syntax-error", diag.Rule)
}

func TestDiagnoseLogFetchFailure(t *testing.T) {
	svc := New(&stubServices{status: "inactive/failed", logsErr: errors.New("no journal")}, discard())
	diag := svc.Diagnose(context.Background(), "dovecot")
	assert.Contains(t, diag.Logs, "failed to fetch logs")
	assert.Equal(t, domain.FixNone, diag.FixType)
}

func TestCustomRulesReplaceDefaults(t *testing.T) {
	rules := []Rule{{Name: "oom", Patterns: []string{"Out of memory"}, FixType: domain.FixPermissionError}}
	svc := New(&stubServices{logs: "Out of memory"}, discard(), WithRules(rules), WithTail(10))
	diag := svc.Diagnose(context.Background(), "x")
	assert.Equal(t, "oom", diag.Rule)
}

func TestRestartSucceedsWithoutDiagnosis(t *testing.T) {
	stub := &stubServices{}
	svc := New(stub, discard())
	require.NoError(t, svc.Restart(context.Background(), "postfix", nil, nil))
	assert.Equal(t, 1, stub.restarts)
}

func TestRestartPortConflictHasNoRemedy(t *testing.T) {
	stub := &stubServices{restartErrs: []error{errors.New("exit 1")}, status: "failed", logs: "Address already in use"}
	svc := New(stub, discard())
	issued := 0
	remedies := Remedies{domain.FixMissingSSL: func(context.Context, domain.ServiceDiagnosis) error {
		issued++
		return nil
	}}

	err := svc.Restart(context.Background(), "postfix", remedies, nil)
	var restartErr *ServiceRestartError
	require.True(t, errors.As(err, &restartErr))
	assert.Equal(t, domain.FixPortConflict, restartErr.Diagnosis.FixType)
	assert.False(t, restartErr.Remediated)
	assert.Zero(t, issued)
	assert.Equal(t, 1, stub.restarts)
}

func TestRestartMissingSSLRemediatesOnceAndRetriesOnce(t *testing.T) {
	stub := &stubServices{restartErrs: []error{errors.New("exit 1"), nil}, logs: "SSL configuration error"}
	svc := New(stub, discard())
	issued := 0
	var outcomes []string
	remedies := Remedies{domain.FixMissingSSL: func(_ context.Context, d domain.ServiceDiagnosis) error {
		issued++
		assert.Equal(t, "dovecot", d.Service)
		return nil
	}}

	err := svc.Restart(context.Background(), "dovecot", remedies, func(_ string, _ domain.FixType, outcome string) {
		outcomes = append(outcomes, outcome)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, issued)
	assert.Equal(t, 2, stub.restarts)
	assert.Equal(t, []string{"recovered"}, outcomes)
}

func TestRestartRetryFailureSurfacesDiagnosis(t *testing.T) {
	stub := &stubServices{restartErrs: []error{errors.New("exit 1")}, logs: "SSL configuration error"}
	svc := New(stub, discard())
	issued := 0
	remedies := Remedies{domain.FixMissingSSL: func(context.Context, domain.ServiceDiagnosis) error {
		issued++
		return nil
	}}

	err := svc.Restart(context.Background(), "postfix", remedies, nil)
	var restartErr *ServiceRestartError
	require.True(t, errors.As(err, &restartErr))
	assert.True(t, restartErr.Remediated)
	assert.Equal(t, domain.FixMissingSSL, restartErr.Diagnosis.FixType)
	assert.Equal(t, 1, issued, "remedy applied only once")
	assert.Equal(t, 2, stub.restarts, "exactly one retry")
}

func TestRestartRemedyFailure(t *testing.T) {
	stub := &stubServices{restartErrs: []error{errors.New("exit 1")}, logs: "SSL configuration error"}
	svc := New(stub, discard())
	remedies := Remedies{domain.FixMissingSSL: func(context.Context, domain.ServiceDiagnosis) error {
		return errors.New("certbot failed")
	}}
	err := svc.Restart(context.Background(), "postfix", remedies, nil)
	var restartErr *ServiceRestartError
	require.True(t, errors.As(err, &restartErr))
	assert.Contains(t, err.Error(), "certbot failed")
	assert.Equal(t, 1, stub.restarts)
}

func TestFormat(t *testing.T) {
	out := Format(domain.ServiceDiagnosis{Service: "postfix", Status: "failed", Logs: "line\n", Suggestion: "fix it"})
	assert.Contains(t, out, "Service: postfix")
	assert.Contains(t, out, "Suggestion: fix it")
	out = Format(domain.ServiceDiagnosis{Service: "x"})
	assert.Contains(t, out, "No specific fix found")
}
