package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.allowsImport("math"))
	assert.True(t, p.allowsImport("stratbench/strategy"))
	assert.False(t, p.allowsImport("os"))
	assert.False(t, p.allowsImport("net/http"))

	assert.True(t, p.denies("time.Now"))
	assert.True(t, p.denies("time.Sleep"))
	assert.False(t, p.denies("time.Duration"))
}

func TestLoadPolicyEmptyPath(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicyPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_imports:\n  - math\n  - stratbench/strategy\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.True(t, p.allowsImport("math"))
	assert.False(t, p.allowsImport("fmt"))
	// 未覆盖的黑名单回落默认值
	assert.True(t, p.denies("time.Now"))
}

func TestLoadPolicyBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}

func TestPolicyStoreHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_imports:\n  - math\n"), 0o644))

	store, err := NewPolicyStore(path)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Watch())

	assert.False(t, store.Current().allowsImport("sort"))

	require.NoError(t, os.WriteFile(path, []byte("allowed_imports:\n  - math\n  - sort\n"), 0o644))
	require.Eventually(t, func() bool {
		return store.Current().allowsImport("sort")
	}, 3*time.Second, 20*time.Millisecond)
}
