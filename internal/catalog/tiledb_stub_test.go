//go:build !tiledb

package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileDBStub(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, "tiledb://"+t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "dem", 0, 0, 0)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, c.Put(ctx, "dem", 0, 0, 0, nil), ErrUnsupported)

	_, err = Open(ctx, "tiledb:///definitely/not/here")
	assert.Error(t, err)
}
