package uiscale_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gif_tool/pkg/uiscale"
)

// 清掉所有会影响探测的环境变量，让用例从干净状态出发
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{uiscale.OverrideEnv, "GDK_SCALE", "GDK_DPI_SCALE", "QT_SCALE_FACTOR"} {
		t.Setenv(k, "")
	}
	// xrdb多半不存在于测试环境，存在的话探测结果也会被夹取，问题不大
}

func TestDetectOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(uiscale.OverrideEnv, "1.5")
	assert.InDelta(t, 1.5, uiscale.Detect(), 0.001)
}

func TestDetectOverrideOutOfRangeIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(uiscale.OverrideEnv, "9.0") // 超出合理窗口，当没设置
	t.Setenv("GDK_SCALE", "2")
	assert.InDelta(t, 2.0, uiscale.Detect(), 0.001)
}

func TestDetectGdkCombination(t *testing.T) {
	clearEnv(t)
	t.Setenv("GDK_SCALE", "2")
	t.Setenv("GDK_DPI_SCALE", "0.75")
	assert.InDelta(t, 1.5, uiscale.Detect(), 0.001)
}

func TestDetectQtFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("QT_SCALE_FACTOR", "1.25")
	assert.InDelta(t, 1.25, uiscale.Detect(), 0.001)
}

func TestDetectClamped(t *testing.T) {
	clearEnv(t)
	t.Setenv(uiscale.OverrideEnv, "3.9") // 窗口内但超过最终上限
	assert.InDelta(t, 3.0, uiscale.Detect(), 0.001)

	t.Setenv(uiscale.OverrideEnv, "0.5")
	assert.InDelta(t, 0.75, uiscale.Detect(), 0.001)
}

func TestParseXrdbDPI(t *testing.T) {
	dpi, ok := uiscale.ParseXrdbDPI("Xft.antialias:\t1\nXft.dpi:\t144\nXft.hinting:\t1\n")
	assert.True(t, ok)
	assert.InDelta(t, 144.0, dpi, 0.001)

	_, ok = uiscale.ParseXrdbDPI("Xft.antialias:\t1\n")
	assert.False(t, ok)

	_, ok = uiscale.ParseXrdbDPI("Xft.dpi:\t9999\n")
	assert.False(t, ok, "离谱的DPI值按读取失败处理")
}

func TestPx(t *testing.T) {
	assert.Equal(t, 3, uiscale.Px(1.5, 2))
	assert.Equal(t, 2, uiscale.Px(1.0, 2))
	assert.Equal(t, 1, uiscale.Px(0.1, 2)) // 最小1像素
}
