package thumb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gif_tool/internal/testutils"
	"gif_tool/pkg/thumb"
)

func TestGetThumbnail(t *testing.T) {
	dir := t.TempDir()
	g := testutils.BuildGIF(2, 64, 32, []int{10, 10})
	path := testutils.WriteGIF(t, dir, "a.gif", g)

	c := thumb.NewCache()
	img := c.Get(path, 24)
	require.NotNil(t, img)

	// 等比缩进24x24的框
	b := img.Bounds()
	assert.Equal(t, 24, b.Dx())
	assert.Equal(t, 12, b.Dy())
	assert.Equal(t, 1, c.Len())

	// 第二次命中缓存，返回同一个对象
	assert.Same(t, img, c.Get(path, 24))
}

func TestGetBrokenFileCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.gif")
	require.NoError(t, os.WriteFile(path, []byte("not a gif"), 0644))

	c := thumb.NewCache()
	assert.Nil(t, c.Get(path, 24))
	// 失败结论也进缓存
	assert.Equal(t, 1, c.Len())
	assert.Nil(t, c.Get(path, 24))
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := testutils.WriteTestGIF(t, dir, "a.gif", 1, []int{10})

	c := thumb.NewCache()
	require.NotNil(t, c.Get(path, 24))
	c.Invalidate(path)
	assert.Equal(t, 0, c.Len())
}
