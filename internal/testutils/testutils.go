package testutils

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

// 测试用调色板，每帧取不同下标就能做逐像素区分
var TestPalette = color.Palette{
	color.RGBA{0, 0, 0, 255},
	color.RGBA{255, 255, 255, 255},
	color.RGBA{255, 0, 0, 255},
	color.RGBA{0, 255, 0, 255},
	color.RGBA{0, 0, 255, 255},
	color.RGBA{255, 255, 0, 255},
	color.RGBA{0, 255, 255, 255},
	color.RGBA{255, 0, 255, 255},
}

// BuildGIF 构造一个纯色逐帧变色的测试GIF。
// delaysCS 单位是 1/100 秒，长度不足的部分补0（即无延时信息）
func BuildGIF(frameCount, w, h int, delaysCS []int) *gif.GIF {
	g := &gif.GIF{
		Config: image.Config{Width: w, Height: h},
	}
	for i := 0; i < frameCount; i++ {
		p := image.NewPaletted(image.Rect(0, 0, w, h), TestPalette)
		ci := uint8(i % len(TestPalette))
		for j := range p.Pix {
			p.Pix[j] = ci
		}
		d := 0
		if i < len(delaysCS) {
			d = delaysCS[i]
		}
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, d)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	return g
}

// WriteGIF 把GIF编码落盘，返回完整路径
func WriteGIF(t *testing.T, dir, name string, g *gif.GIF) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建测试GIF失败: %v", err)
	}
	defer func() { _ = f.Close() }()

	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatalf("编码测试GIF失败: %v", err)
	}
	return path
}

// WriteTestGIF 一步构造并落盘，多数用例只需要这个
func WriteTestGIF(t *testing.T, dir, name string, frameCount int, delaysCS []int) string {
	t.Helper()
	return WriteGIF(t, dir, name, BuildGIF(frameCount, 8, 8, delaysCS))
}

// WriteFramelessGIF 手工拼一个没有任何图像块的GIF
// （EncodeAll不允许0帧，只能自己写字节流）
func WriteFramelessGIF(t *testing.T, dir, name string) string {
	t.Helper()

	data := []byte("GIF89a")
	// 逻辑屏幕描述符：8x8，无全局色表
	data = append(data, 0x08, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00)
	data = append(data, 0x3B) // trailer

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("写入无帧GIF失败: %v", err)
	}
	return path
}

// FindGoModRoot 从start向上找go.mod所在目录
func FindGoModRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
