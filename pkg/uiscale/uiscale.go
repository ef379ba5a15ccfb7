package uiscale

import (
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"
)

// 以96DPI为1.0的UI缩放估计。
// Ubuntu 4K/150% 这类环境下工具包经常拾取不到正确缩放，
// 按 手动覆盖 -> 桌面环境变量 -> xrdb -> 默认1.0 的顺序兜底

const (
	// 估计值的最终夹取范围
	minScale = 0.75
	maxScale = 3.0

	// 环境变量/DPI的合理性窗口，超出按读取失败处理
	envScaleMin = 0.5
	envScaleMax = 4.0
	dpiMin      = 50.0
	dpiMax      = 400.0
)

// 手动覆盖用，例如 GIFPLAY_UI_SCALE=1.5
const OverrideEnv = "GIFPLAY_UI_SCALE"

var xftDPIRe = regexp.MustCompile(`Xft\.dpi:\s*([0-9.]+)`)

// Detect 估计当前显示的UI缩放，结果已夹取到[0.75, 3.0]
func Detect() float64 {
	if v, ok := safeFloat(os.Getenv(OverrideEnv)); ok && v >= envScaleMin && v <= envScaleMax {
		return clampScale(v)
	}

	if v, ok := detectFromEnv(); ok {
		return clampScale(v)
	}

	if dpi, ok := detectFromXrdb(); ok {
		return clampScale(dpi / 96.0)
	}

	return 1.0
}

// Px 把逻辑像素值按缩放放大并取整，至少1像素
func Px(scale float64, v float64) int {
	out := int(math.Round(v * scale))
	if out < 1 {
		out = 1
	}
	return out
}

// GNOME/Wayland 系常见的缩放环境变量。
// 150%的场景下大致会得到1.5
func detectFromEnv() (float64, bool) {
	gdkScale, okScale := safeFloat(os.Getenv("GDK_SCALE"))
	gdkDPIScale, okDPI := safeFloat(os.Getenv("GDK_DPI_SCALE"))
	if okScale || okDPI {
		scale := 1.0
		if okScale {
			scale *= gdkScale
		}
		if okDPI {
			scale *= gdkDPIScale
		}
		if scale >= envScaleMin && scale <= envScaleMax {
			return scale, true
		}
	}

	if qt, ok := safeFloat(os.Getenv("QT_SCALE_FACTOR")); ok && qt >= envScaleMin && qt <= envScaleMax {
		return qt, true
	}

	return 0, false
}

// X11下有时只在 Xft.dpi 里配置，例如 "Xft.dpi: 144"
func detectFromXrdb() (float64, bool) {
	out, err := exec.Command("xrdb", "-query").Output()
	if err != nil {
		return 0, false
	}
	return ParseXrdbDPI(string(out))
}

// ParseXrdbDPI 从xrdb -query输出里抠出合理范围内的Xft.dpi
func ParseXrdbDPI(out string) (float64, bool) {
	m := xftDPIRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	dpi, ok := safeFloat(m[1])
	if !ok || dpi < dpiMin || dpi > dpiMax {
		return 0, false
	}
	return dpi, true
}

func safeFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func clampScale(v float64) float64 {
	return math.Min(maxScale, math.Max(minScale, v))
}
