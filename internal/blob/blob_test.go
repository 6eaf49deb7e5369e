package blob

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Config{FSRoot: filepath.Join(t.TempDir(), "b")})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fsStore.Driver(), "filesystem is the default")

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "s3 without a bucket")

	s3, err := Open(ctx, Config{Driver: DriverS3, S3: S3Config{Bucket: "bkt", AccessKeyID: "a", SecretAccessKey: "b"}})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, s3.Driver())

	_, err = Open(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}

func TestBackendsShareSentinels(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	for _, store := range []Store{NewMemory(), fsStore, NewMockS3ForTests()} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			_, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("{}")), PutOptions{})
			require.NoError(t, err)
			_, err = store.Put(ctx, "k.json", bytes.NewReader([]byte("{}")), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)
			_, err = store.Head(ctx, "missing.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
