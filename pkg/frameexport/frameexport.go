package frameexport

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// 当前帧导出。PNG直接写，GIF要先转调色板图：
// 用216色web安全调色板加Floyd-Steinberg抖动，效果对截图类内容足够

// DefaultName 导出对话框的默认文件名，帧号从1开始
func DefaultName(gifPath string, frameIndex int) string {
	base := filepath.Base(gifPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_frame_%04d.png", stem, frameIndex+1)
}

// Save 按扩展名选格式：.gif走调色板转换，其余一律按PNG写
func Save(path string, img image.Image) error {
	if strings.ToLower(filepath.Ext(path)) == ".gif" {
		return SaveGIF(path, img)
	}
	return SavePNG(path, img)
}

// SavePNG 原样写出PNG
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return png.Encode(f, img)
}

// SaveGIF 转成调色板图后写出单帧GIF
func SaveGIF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return gif.Encode(f, toPaletted(img), nil)
}

// web安全的216色调色板
var webSafePalette = buildWebSafePalette()

func buildWebSafePalette() color.Palette {
	levels := []uint8{0, 51, 102, 153, 204, 255}
	p := make(color.Palette, 0, 216)
	for _, r := range levels {
		for _, g := range levels {
			for _, b := range levels {
				p = append(p, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}
	return p
}

func toPaletted(src image.Image) *image.Paletted {
	b := src.Bounds()
	dst := image.NewPaletted(b, webSafePalette)
	draw.FloydSteinberg.Draw(dst, b, src, image.Point{})
	return dst
}
