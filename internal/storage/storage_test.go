package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Save(ctx, 42, "laudo.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".pdf"))
	assert.False(t, strings.HasPrefix(ref, "/"))

	reader, err := store.Open(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Open(ctx, ref)
	assert.Error(t, err)

	// Deleting twice is fine.
	require.NoError(t, store.Delete(ctx, ref))
}

func TestFilesystemStoreRejectsEscapingRefs(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, ref := range []string{"../etc/passwd", "/etc/passwd", "."} {
		_, err := store.Open(ctx, ref)
		assert.Error(t, err, ref)
	}
}

func TestSanitizeExtension(t *testing.T) {
	assert.Equal(t, ".pdf", sanitizeExtension("laudo.pdf"))
	assert.Equal(t, ".png", sanitizeExtension("FOTO.PNG"))
	assert.Equal(t, "", sanitizeExtension("sem-extensao"))
	assert.Equal(t, "", sanitizeExtension("estranho.p df"))
}

func TestNewFilesystemStoreRequiresPath(t *testing.T) {
	_, err := NewFilesystemStore("  ")
	assert.Error(t, err)
}
