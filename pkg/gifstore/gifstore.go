package gifstore

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"
	"strings"
	"time"
)

const (
	// 单帧的最小显示时长。有些GIF会把延时编码成0或1，
	// 不钳住的话定时器会被疯狂触发
	MinFrameDuration = 20 * time.Millisecond

	// 帧没有自己的延时信息时的兜底值，GIF生态的惯例是100ms
	defaultFrameDuration = 100 * time.Millisecond
)

// FormatError 选择的文件不是GIF（或者已经损坏到无法解析）
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("不是有效的GIF文件: %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// EmptyAnimationError GIF能解析但是一帧都没有
type EmptyAnimationError struct {
	Path string
}

func (e *EmptyAnimationError) Error() string {
	return fmt.Sprintf("GIF中没有找到任何帧: %s", e.Path)
}

// IndexError 帧下标越界
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("帧下标越界: %d (总帧数 %d)", e.Index, e.Count)
}

// Frame 动画中的一帧。GIF里每帧只存相对上一帧的增量，
// 加载时已经合成为完整画布大小的RGBA，可以直接拿去显示
type Frame struct {
	Image    *image.RGBA
	Duration time.Duration
	Index    int
}

// Animation 一次加载得到的完整动画，加载之后不再修改。
// 帧数据全部驻留内存，不保留文件句柄
type Animation struct {
	path   string
	bounds image.Rectangle
	frames []*Frame
}

// Load 解码整个GIF文件。失败时返回 *FormatError 或 *EmptyAnimationError，
// 调用方可以继续使用之前已经加载的动画
func Load(path string) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	g, err := gif.DecodeAll(f)
	if err != nil {
		// 标准库对"一帧都没有"的GIF也走error返回，且错误未导出类型，
		// 只能按消息区分出来映射成EmptyAnimationError
		if strings.Contains(err.Error(), "missing image data") {
			return nil, &EmptyAnimationError{Path: path}
		}
		return nil, &FormatError{Path: path, Err: err}
	}
	if len(g.Image) == 0 {
		return nil, &EmptyAnimationError{Path: path}
	}

	bounds := canvasBounds(g)
	frames := coalesce(g, bounds)
	for i, fr := range frames {
		fr.Duration = frameDuration(g, i)
	}

	return &Animation{path: path, bounds: bounds, frames: frames}, nil
}

// FrameCount 总帧数，加载成功时至少为1
func (a *Animation) FrameCount() int { return len(a.frames) }

// Path 源文件路径
func (a *Animation) Path() string { return a.path }

// Bounds 逻辑画布大小，所有帧都是这个尺寸
func (a *Animation) Bounds() image.Rectangle { return a.bounds }

// FrameAt 按下标随机访问帧
func (a *Animation) FrameAt(index int) (*Frame, error) {
	if index < 0 || index >= len(a.frames) {
		return nil, &IndexError{Index: index, Count: len(a.frames)}
	}
	return a.frames[index], nil
}

// 逻辑画布。个别工具生成的GIF帧会越出Config声明的范围，取并集保险
func canvasBounds(g *gif.GIF) image.Rectangle {
	w, h := g.Config.Width, g.Config.Height
	if w <= 0 || h <= 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	r := image.Rect(0, 0, w, h)
	for _, fr := range g.Image {
		r = r.Union(fr.Bounds())
	}
	return r
}

// 按disposal语义把增量帧合成为逐帧完整画面
func coalesce(g *gif.GIF, bounds image.Rectangle) []*Frame {
	canvas := image.NewRGBA(bounds)
	frames := make([]*Frame, 0, len(g.Image))

	for i, src := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		// DisposalPrevious要求显示完本帧后恢复原画面，先留底
		var backup *image.RGBA
		if disposal == gif.DisposalPrevious {
			backup = image.NewRGBA(bounds)
			copy(backup.Pix, canvas.Pix)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		out := image.NewRGBA(bounds)
		copy(out.Pix, canvas.Pix)
		frames = append(frames, &Frame{Image: out, Index: i})

		switch disposal {
		case gif.DisposalBackground:
			// 标准上应该填背景色，但浏览器们一律当成透明处理，跟随
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = backup
		}
	}

	return frames
}

// 单帧延时：帧自带的Delay优先，没有就用动画级兜底值，最后统一钳下限
func frameDuration(g *gif.GIF, i int) time.Duration {
	d := defaultFrameDuration
	if i < len(g.Delay) && g.Delay[i] > 0 {
		d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
	}
	if d < MinFrameDuration {
		d = MinFrameDuration
	}
	return d
}
