package render_test

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gif_tool/internal/testutils"
	"gif_tool/pkg/gifstore"
	"gif_tool/pkg/render"
)

// 用互斥锁模拟"单一控制线程"：测试代码和定时器回调都串行通过do进来，
// 跟GUI壳里经过fyne.Do是同一个约定
type harness struct {
	mu     sync.Mutex
	player *render.Player
	frames []int // onFrame收到的帧下标序列
}

func newHarness(t *testing.T, frameCount int, delaysCS []int, scale float64) *harness {
	t.Helper()

	h := &harness{}
	dispatch := func(f func()) {
		h.mu.Lock()
		defer h.mu.Unlock()
		f()
	}
	onFrame := func(index int, _ image.Image) {
		h.frames = append(h.frames, index)
	}
	h.player = render.NewPlayer(dispatch, onFrame, scale)

	if frameCount > 0 {
		path := testutils.WriteTestGIF(t, t.TempDir(), "anim.gif", frameCount, delaysCS)
		anim, err := gifstore.Load(path)
		require.NoError(t, err)
		h.do(func() { h.player.SetAnimation(anim) })
	}
	return h
}

func (h *harness) do(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f()
}

func (h *harness) frameEvents() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.frames))
	copy(out, h.frames)
	return out
}

func TestGetOrRenderCacheHit(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	var img1, img2 image.Image
	h.do(func() {
		var err error
		img1, err = h.player.GetOrRender(0, 100, 80)
		require.NoError(t, err)
		img2, err = h.player.GetOrRender(0, 100, 80)
		require.NoError(t, err)
	})

	// 第二次必须是缓存命中：同一个对象，且真实渲染只发生一次
	assert.Same(t, img1, img2)
	assert.Equal(t, 1, h.player.RenderCount())
	assert.Equal(t, 1, h.player.CacheSize())

	// 不同尺寸是另一个key
	h.do(func() {
		_, err := h.player.GetOrRender(0, 200, 80)
		require.NoError(t, err)
	})
	assert.Equal(t, 2, h.player.RenderCount())
}

func TestCacheCapacityEviction(t *testing.T) {
	h := newHarness(t, 1, []int{10}, 1.0)

	h.do(func() {
		for i := 0; i <= render.CacheCapacity; i++ {
			_, err := h.player.GetOrRender(0, 100+i, 100)
			require.NoError(t, err)
		}
	})

	// 第121个key插入后淘汰恰好一个最旧条目
	assert.Equal(t, render.CacheCapacity, h.player.CacheSize())

	// 最旧的(100,100)已经被挤掉，再要一次得重新渲染
	before := h.player.RenderCount()
	h.do(func() {
		_, err := h.player.GetOrRender(0, 100, 100)
		require.NoError(t, err)
	})
	assert.Equal(t, before+1, h.player.RenderCount())
}

func TestSetAnimationClearsCache(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	h.do(func() {
		_, err := h.player.GetOrRender(2, 64, 64)
		require.NoError(t, err)
	})
	assert.Equal(t, 1, h.player.CacheSize())

	path := testutils.WriteTestGIF(t, t.TempDir(), "other.gif", 5, []int{10, 10, 10, 10, 10})
	anim, err := gifstore.Load(path)
	require.NoError(t, err)

	h.do(func() { h.player.SetAnimation(anim) })

	// 换动画后缓存全量作废，下标归零
	assert.Equal(t, 0, h.player.CacheSize())
	assert.Equal(t, 0, h.player.CurrentIndex())
	assert.Equal(t, 5, h.player.FrameCount())
	assert.False(t, h.player.Playing())
}

func TestSeekClampAndStepWrap(t *testing.T) {
	h := newHarness(t, 5, []int{10, 10, 10, 10, 10}, 1.0)

	h.do(func() { h.player.Seek(99) })
	assert.Equal(t, 4, h.player.CurrentIndex())

	h.do(func() { h.player.Seek(-3) })
	assert.Equal(t, 0, h.player.CurrentIndex())

	h.do(func() { h.player.Seek(4) })
	h.do(func() { h.player.Step(1) })
	assert.Equal(t, 0, h.player.CurrentIndex(), "向前跨过末帧要回绕到0")

	h.do(func() { h.player.Step(-1) })
	assert.Equal(t, 4, h.player.CurrentIndex(), "向后跨过首帧要回绕到末帧")

	// Seek/Step都不触发渲染
	assert.Equal(t, 0, h.player.RenderCount())
}

func TestTickDelayClamp(t *testing.T) {
	// 20ms帧在2倍速下算出来10ms，必须被钳到30ms下限
	assert.Equal(t, 30*time.Millisecond, render.TickDelay(20*time.Millisecond, render.SpeedDouble))
	assert.Equal(t, 30*time.Millisecond, render.TickDelay(20*time.Millisecond, render.SpeedNormal))
	assert.Equal(t, 1*time.Second, render.TickDelay(500*time.Millisecond, render.SpeedHalf))
	assert.Equal(t, 250*time.Millisecond, render.TickDelay(500*time.Millisecond, render.SpeedDouble))
}

func TestPlaybackAdvancesAndWraps(t *testing.T) {
	// 2帧动画，帧时长被钳到20ms，播放间隔钳到30ms，
	// 300ms窗口内足够走好几圈
	h := newHarness(t, 2, []int{1, 1}, 1.0)

	h.do(func() {
		h.player.OnResize(64, 64)
		h.player.Play()
	})
	assert.True(t, h.player.Playing())

	time.Sleep(300 * time.Millisecond)
	h.do(func() { h.player.Stop() })

	events := h.frameEvents()
	require.NotEmpty(t, events, "播放期间应该持续出帧")
	seen := map[int]bool{}
	for _, idx := range events {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 2)
		seen[idx] = true
	}
	// 两帧都出现过才说明发生了模2回绕
	assert.True(t, seen[0] && seen[1], "tick应该回绕经过所有帧: %v", events)
}

func TestPlayStopIdempotent(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	h.do(func() {
		h.player.Play()
		h.player.Play() // 第二次是空操作，不会再挂一个定时器
	})
	assert.True(t, h.player.Playing())

	// 帧时长100ms，250ms内单个定时器最多tick三次上下；
	// 如果误挂了两个定时器，这里会明显翻倍
	time.Sleep(250 * time.Millisecond)
	h.do(func() {
		h.player.Stop()
		h.player.Stop()
	})
	assert.False(t, h.player.Playing())
	assert.LessOrEqual(t, len(h.frameEvents()), 4)

	// 停止后不再出帧
	n := len(h.frameEvents())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, len(h.frameEvents()))
}

func TestResizeDebounceCoalesces(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	h.do(func() {
		h.player.OnResize(100, 100)
		h.player.OnResize(200, 150)
		h.player.OnResize(300, 200)
	})

	time.Sleep(200 * time.Millisecond)

	// 三次连击只渲染一次，且用的是最后一次的尺寸
	events := h.frameEvents()
	assert.Len(t, events, 1)
	assert.Equal(t, 1, h.player.RenderCount())
	w, hgt := h.player.TargetSize()
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, hgt)
}

func TestSubThresholdResizeIgnored(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	// 先真实渲染一次，确立比较基线(100,100)
	h.do(func() {
		_, err := h.player.GetOrRender(0, 100, 100)
		require.NoError(t, err)
	})

	// 缩放1.0时阈值是2px，±2以内的抖动要被整个无视
	h.do(func() { h.player.OnResize(101, 99) })
	h.do(func() { h.player.OnResize(102, 102) })

	time.Sleep(200 * time.Millisecond)

	assert.Empty(t, h.frameEvents(), "亚像素抖动不应该触发任何渲染")
	assert.Equal(t, 1, h.player.RenderCount())
	assert.Equal(t, 1, h.player.CacheSize(), "抖动也不应该作废现有缓存")

	// 基线仍然是上次渲染的尺寸：一次真正的变化照常生效
	h.do(func() { h.player.OnResize(200, 200) })
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, h.frameEvents(), 1)
}

func TestGetOrRenderPropagatesFrameError(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	h.do(func() {
		_, err := h.player.GetOrRender(99, 64, 64)
		require.Error(t, err)
		var idxErr *gifstore.IndexError
		assert.True(t, errors.As(err, &idxErr))
	})

	// 失败的请求不留下半成品条目
	assert.Equal(t, 0, h.player.CacheSize())
	assert.Equal(t, 0, h.player.RenderCount())
}

func TestEmptyPlayerIsInert(t *testing.T) {
	h := newHarness(t, 0, nil, 1.0)

	h.do(func() {
		h.player.Play()
		h.player.Seek(3)
		h.player.Step(1)
		h.player.OnResize(100, 100)
	})
	assert.False(t, h.player.Playing())
	assert.Equal(t, 0, h.player.FrameCount())

	h.do(func() {
		_, err := h.player.GetOrRender(0, 64, 64)
		assert.Error(t, err)
	})
}

func TestCurrentFrameForExport(t *testing.T) {
	h := newHarness(t, 3, []int{10, 10, 10}, 1.0)

	h.do(func() { h.player.Seek(1) })
	fr, err := h.player.CurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Index)
	assert.NotNil(t, fr.Image)
}
