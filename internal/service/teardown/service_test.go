package teardown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/docker"
	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/repository"
	"github.com/splax/peephost/internal/repository/filestore"
	"github.com/splax/peephost/internal/workspace"
)

type recorder struct{ calls []string }

func (r *recorder) add(call string) { r.calls = append(r.calls, call) }

type fakeStacks struct {
	rec  *recorder
	errs map[string]error
}

func (f fakeStacks) Down(_ context.Context, dir string) error {
	f.rec.add("down " + filepath.Base(dir))
	return f.errs[filepath.Base(dir)]
}

type fakeSweeper struct{ rec *recorder }

func (f fakeSweeper) RemoveByPrefix(_ context.Context, prefix string) ([]string, error) {
	f.rec.add("sweep " + prefix)
	return []string{prefix + "app"}, nil
}

type fakeSites struct {
	rec *recorder
	err error
}

func (f fakeSites) Unlink(_ context.Context, sites ...string) error {
	for _, s := range sites {
		f.rec.add("unlink " + s)
	}
	return f.err
}

type fakeCerts struct{ rec *recorder }

func (f fakeCerts) Revoke(_ context.Context, name string) error {
	f.rec.add("revoke " + name)
	return nil
}

type fakeMail struct{ rec *recorder }

func (f fakeMail) PurgeProject(_ context.Context, name string) ([]domain.MailUserMapping, error) {
	f.rec.add("purge " + name)
	return []domain.MailUserMapping{{Email: "a@example.com", SystemUser: "a_" + name}}, nil
}

type fakeDirs struct {
	rec *recorder
	err error
}

func (f fakeDirs) Cleanup(path string) error {
	f.rec.add("cleanup " + filepath.Base(filepath.Dir(path)))
	return f.err
}

type fakeElevated struct{ rec *recorder }

func (f fakeElevated) RemoveTree(_ context.Context, path string) error {
	f.rec.add("sudo rm " + filepath.Base(filepath.Dir(path)))
	return nil
}

type harness struct {
	store *filestore.Store
	rec   *recorder
	deps  Deps
	steps []string
}

func newHarness(t *testing.T, record domain.ProjectRecord) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := filestore.New(filepath.Join(t.TempDir(), "projects.json"), logger)
	require.NoError(t, store.Put(context.Background(), "blog", record))
	rec := &recorder{}
	return &harness{
		store: store,
		rec:   rec,
		deps: Deps{
			Store:    store,
			Stacks:   fakeStacks{rec: rec},
			Sweeper:  fakeSweeper{rec: rec},
			Sites:    fakeSites{rec: rec},
			Certs:    fakeCerts{rec: rec},
			Mail:     fakeMail{rec: rec},
			Dirs:     fakeDirs{rec: rec},
			Elevated: fakeElevated{rec: rec},
		},
	}
}

func (h *harness) service() *Service {
	return New(h.deps, func(step string, _ error) { h.steps = append(h.steps, step) }, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func linkedRecord() domain.ProjectRecord {
	return domain.ProjectRecord{
		ProjectPath: "/srv/sites/blog",
		DataPath:    "/srv/data/blog",
		Port:        3000,
		Domain:      "example.com",
	}
}

func TestDestroyRunsEveryStepInOrder(t *testing.T) {
	h := newHarness(t, linkedRecord())

	report, err := h.service().Destroy(context.Background(), "blog")
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, []string{StepContainers, StepProxy, StepCertificates, StepMail, StepFiles, StepRegistry}, h.steps)
	assert.Equal(t, []string{
		"down webmail",
		"down blog",
		"sweep blog_",
		"unlink example.com",
		"unlink webmail.example.com",
		"revoke example.com",
		"revoke webmail.example.com",
		"purge blog",
		"cleanup data",
		"cleanup sites",
	}, h.rec.calls)

	_, err = h.store.Get(context.Background(), "blog")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDestroyContinuesPastFailuresAndRemovesRecord(t *testing.T) {
	h := newHarness(t, linkedRecord())
	h.deps.Sites = fakeSites{rec: h.rec, err: errors.New("nginx reload failed")}
	h.deps.Stacks = fakeStacks{rec: h.rec, errs: map[string]error{"webmail": docker.ErrNoComposeFile}}

	report, err := h.service().Destroy(context.Background(), "blog")

	var tdErr *TeardownError
	require.ErrorAs(t, err, &tdErr)
	require.Len(t, tdErr.Failed, 1)
	assert.Equal(t, StepProxy, tdErr.Failed[0].Step)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "blog", stepErr.Project)

	assert.False(t, report.Clean())
	assert.Len(t, report.Steps, 6)
	assert.Equal(t, "nginx reload failed", report.Steps[1].Error)
	assert.Contains(t, h.rec.calls, "purge blog")

	_, err = h.store.Get(context.Background(), "blog")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDestroyRetriesRemovalWithElevation(t *testing.T) {
	h := newHarness(t, linkedRecord())
	h.deps.Dirs = fakeDirs{rec: h.rec, err: errors.New("permission denied")}

	_, err := h.service().Destroy(context.Background(), "blog")
	require.NoError(t, err)
	assert.Contains(t, h.rec.calls, "sudo rm data")
	assert.Contains(t, h.rec.calls, "sudo rm sites")
}

func TestDestroyRefusesPathsOutsideRoots(t *testing.T) {
	h := newHarness(t, linkedRecord())
	h.deps.Dirs = fakeDirs{rec: h.rec, err: workspace.ErrOutsideRoot}

	report, err := h.service().Destroy(context.Background(), "blog")
	require.Error(t, err)
	assert.NotContains(t, h.rec.calls, "sudo rm data")
	assert.Equal(t, StepFiles, report.Failed()[0].Step)
}

func TestDestroyWithoutDomainSkipsProxyAndCertificates(t *testing.T) {
	rec := linkedRecord()
	rec.Domain = ""
	h := newHarness(t, rec)

	_, err := h.service().Destroy(context.Background(), "blog")
	require.NoError(t, err)
	for _, call := range h.rec.calls {
		assert.NotContains(t, call, "unlink")
		assert.NotContains(t, call, "revoke")
	}
}

func TestDestroyUnknownProject(t *testing.T) {
	h := newHarness(t, linkedRecord())

	_, err := h.service().Destroy(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, h.rec.calls)
	assert.Empty(t, h.steps)
}
