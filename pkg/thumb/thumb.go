package thumb

import (
	"image"
	"image/gif"
	"os"

	"github.com/nfnt/resize"
)

// 侧边栏缩略图：只解码GIF的第一帧，缩到边长以内。
// 损坏的文件也记一个nil占位，避免每次刷新列表都去读一遍

const defaultCapacity = 64

type cacheEntry struct {
	img  image.Image // 解码失败时为nil
	edge int
}

// Cache 按路径缓存的缩略图，容量用简单的先进先出控制
type Cache struct {
	capacity int
	entries  map[string]cacheEntry
	order    []string
}

func NewCache() *Cache {
	return &Cache{
		capacity: defaultCapacity,
		entries:  make(map[string]cacheEntry),
	}
}

// Get 取path的缩略图，最长边不超过edge。
// 文件打不开或者不是GIF时返回nil（并缓存这个结论）
func (c *Cache) Get(path string, edge int) image.Image {
	if e, ok := c.entries[path]; ok && e.edge == edge {
		return e.img
	}

	img := makeThumb(path, edge)
	c.put(path, cacheEntry{img: img, edge: edge})
	return img
}

// Invalidate 单个文件变化后清掉对应条目
func (c *Cache) Invalidate(path string) {
	if _, ok := c.entries[path]; !ok {
		return
	}
	delete(c.entries, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len 当前条目数
func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) put(path string, e cacheEntry) {
	if _, ok := c.entries[path]; !ok {
		c.order = append(c.order, path)
	}
	c.entries[path] = e
	for len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func makeThumb(path string, edge int) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	// gif.Decode只取第一帧，比DecodeAll省得多
	img, err := gif.Decode(f)
	if err != nil {
		return nil
	}
	return resize.Thumbnail(uint(edge), uint(edge), img, resize.Bilinear)
}
