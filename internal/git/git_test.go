package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/peephost/internal/system/systemtest"
)

func TestCloneDisablesPrompt(t *testing.T) {
	runner := systemtest.New()
	dest := t.TempDir()

	require.NoError(t, Clone(context.Background(), runner, "https://example.com/site.git", dest))

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "git clone --depth 1 https://example.com/site.git .", systemtest.Line(cmds[0]))
	assert.Equal(t, dest, cmds[0].Dir)
	assert.Contains(t, cmds[0].Env, "GIT_TERMINAL_PROMPT=0")
	assert.False(t, cmds[0].Privileged)
}

func TestCloneReportsOutput(t *testing.T) {
	runner := systemtest.New().On("git clone", "fatal: repository not found", systemtest.Fail("fatal: repository not found"))

	err := Clone(context.Background(), runner, "https://example.com/missing.git", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestCloneRequiresArguments(t *testing.T) {
	runner := systemtest.New()
	assert.Error(t, Clone(context.Background(), runner, "", "/tmp"))
	assert.Error(t, Clone(context.Background(), runner, "https://example.com/a.git", ""))
	assert.Empty(t, runner.Calls())
}
