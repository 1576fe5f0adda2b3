package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerreports/internal/core"
)

func TestFileStore_Write(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)

	loc, err := s.Write(context.Background(), "req-1", core.KindBalance, []byte("Account,Balance\nCash,60.00"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "req-1", "accounts.csv"), loc)

	got, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "Account,Balance\nCash,60.00", string(got))

	entries, err := os.ReadDir(filepath.Join(root, "req-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_Overwrite(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	first, err := s.Write(ctx, "req-1", core.KindYearly, []byte("one"))
	require.NoError(t, err)
	second, err := s.Write(ctx, "req-1", core.KindYearly, []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, first, second, "location is deterministic")

	got, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestFileStore_Rejects(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	_, err := s.Write(ctx, "", core.KindBalance, nil)
	assert.ErrorIs(t, err, core.ErrEmptyRequestID)

	_, err = s.Write(ctx, "../escape", core.KindBalance, nil)
	assert.Error(t, err)

	_, err = s.Write(ctx, "req-1", core.Kind("monthly"), nil)
	assert.ErrorIs(t, err, core.ErrUnknownKind)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "abc/fs.csv", ObjectName("abc", core.KindStatement))
	s := &GCSStore{bucket: "b", prefix: "reports/"}
	assert.Equal(t, "reports/abc/yearly.csv", s.ObjectName("abc", core.KindYearly))
}
