package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRun_Output(t *testing.T) {
	requireShell(t)
	out, err := New(5*time.Second).Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestRun_IsolatedTemp(t *testing.T) {
	requireShell(t)
	out, err := New(5*time.Second).Run(context.Background(), "sh", "-c", `echo "$TMPDIR:$TMP:$TEMP"`)
	require.NoError(t, err)

	parts := strings.Split(strings.TrimSpace(string(out)), ":")
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0], "datascanner-proc-")
	assert.Equal(t, parts[0], parts[1])
	assert.Equal(t, parts[0], parts[2])
}

func TestRun_ExitStatus(t *testing.T) {
	requireShell(t)
	_, err := New(5*time.Second).Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestRun_TimeoutKillsGroup(t *testing.T) {
	requireShell(t)
	start := time.Now()
	_, err := New(200*time.Millisecond).Run(context.Background(), "sh", "-c", "sleep 30 & sleep 30")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := New(time.Second).Run(context.Background(), "definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}
