package render

import (
	"image"
	"math"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"golang.org/x/exp/constraints"
	xdraw "golang.org/x/image/draw"

	"gif_tool/pkg/gifstore"
)

const (
	// 渲染缓存的最大条目数，超出后按生产顺序淘汰最旧的
	CacheCapacity = 120

	// 播放定时器的最低间隔。跟gifstore里20ms的单帧钳制是两回事：
	// 那个管帧数据本身，这个管2倍速之后保护UI线程不被打爆
	MinTickDelay = 30 * time.Millisecond

	// 窗口拖拽尺寸抖动的去抖时长
	resizeDebounce = 80 * time.Millisecond

	// 尺寸变化的忽略阈值基数（像素），会乘上显示缩放
	resizeEpsilonBase = 2
)

// Speed 播放速度倍率，只开放这三档
type Speed float64

const (
	SpeedHalf   Speed = 0.5
	SpeedNormal Speed = 1.0
	SpeedDouble Speed = 2.0
)

type cacheKey struct {
	index int
	w, h  int
}

// Player 渲染缓存+播放调度。
// 所有方法都必须在dispatch所代表的那个控制线程上调用，
// 定时器回调也是先经过dispatch再碰状态，整个包内不需要锁
type Player struct {
	anim  *gifstore.Animation
	cache *linkedhashmap.Map // cacheKey -> image.Image，插入序即生产序

	current int
	speed   Speed
	playing bool

	// 最新目标尺寸 与 上一次真正渲染过的尺寸（抖动比较的基线）
	targetW, targetH int
	lastW, lastH     int
	epsilonPx        int

	// 定时器用代数来作废：Stop或者重新armTimer之后，
	// 已经在dispatch队列里排队的旧回调要能自己认出来丢弃
	playTimer   *time.Timer
	playGen     int
	resizeTimer *time.Timer
	resizeGen   int

	renders int

	dispatch func(func())
	onFrame  func(index int, img image.Image)
}

// NewPlayer 构造播放器。dispatch负责把定时器回调送回控制线程
// （GUI壳传fyne.Do，测试里直接原地调用即可）；onFrame是渲染结果的
// 展示回调；scale是显示缩放系数，用来放大尺寸抖动阈值
func NewPlayer(dispatch func(func()), onFrame func(index int, img image.Image), scale float64) *Player {
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	eps := int(math.Round(resizeEpsilonBase * scale))
	if eps < resizeEpsilonBase {
		eps = resizeEpsilonBase
	}
	return &Player{
		cache:     linkedhashmap.New(),
		speed:     SpeedNormal,
		epsilonPx: eps,
		dispatch:  dispatch,
		onFrame:   onFrame,
	}
}

// SetAnimation 整体换动画：停止播放、清空缓存、回到第0帧。
// 传nil进入空状态。不同动画之间帧下标没有任何对应关系，
// 所以缓存必须全量作废
func (p *Player) SetAnimation(anim *gifstore.Animation) {
	p.Stop()
	p.cache.Clear()
	p.anim = anim
	p.current = 0
}

// Animation 当前动画，可能为nil
func (p *Player) Animation() *gifstore.Animation { return p.anim }

// CurrentIndex 当前帧下标
func (p *Player) CurrentIndex() int { return p.current }

// FrameCount 当前动画总帧数，空状态返回0
func (p *Player) FrameCount() int {
	if p.anim == nil {
		return 0
	}
	return p.anim.FrameCount()
}

// Playing 是否在播放中
func (p *Player) Playing() bool { return p.playing }

// Speed 当前速度倍率
func (p *Player) Speed() Speed { return p.speed }

// SetSpeed 切换速度。不作废缓存，下一次armTimer时生效
func (p *Player) SetSpeed(s Speed) {
	switch s {
	case SpeedHalf, SpeedNormal, SpeedDouble:
		p.speed = s
	}
}

// TargetSize 最近一次被接受的目标尺寸
func (p *Player) TargetSize() (int, int) { return p.targetW, p.targetH }

// CacheSize 缓存条目数
func (p *Player) CacheSize() int { return p.cache.Size() }

// RenderCount 累计真实渲染次数（缓存命中不算）
func (p *Player) RenderCount() int { return p.renders }

// CurrentFrame 当前帧的原始数据，给导出用
func (p *Player) CurrentFrame() (*gifstore.Frame, error) {
	if p.anim == nil {
		return nil, &gifstore.IndexError{Index: p.current, Count: 0}
	}
	return p.anim.FrameAt(p.current)
}

// GetOrRender 按(帧下标,目标宽,目标高)取显示图像，未命中才真正渲染。
// 帧取不到时原样上抛错误，缓存和播放状态都不动
func (p *Player) GetOrRender(index, w, h int) (image.Image, error) {
	if p.anim == nil {
		return nil, &gifstore.IndexError{Index: index, Count: 0}
	}

	key := cacheKey{index: index, w: w, h: h}
	if v, ok := p.cache.Get(key); ok {
		// 命中不调整淘汰顺位，淘汰纯按生产顺序
		return v.(image.Image), nil
	}

	fr, err := p.anim.FrameAt(index)
	if err != nil {
		return nil, err
	}

	img := fitToBox(fr.Image, w, h)
	p.renders++
	p.cache.Put(key, img)
	for p.cache.Size() > CacheCapacity {
		it := p.cache.Iterator()
		if !it.First() {
			break
		}
		p.cache.Remove(it.Key())
	}

	p.lastW, p.lastH = w, h
	return img, nil
}

// Play 开始播放。已经在播放或者没有动画时什么都不做
func (p *Player) Play() {
	if p.playing || p.anim == nil {
		return
	}
	p.playing = true
	p.armTick()
}

// Stop 停止播放并取消挂起的定时器，重复调用无副作用
func (p *Player) Stop() {
	p.playing = false
	p.playGen++
	if p.playTimer != nil {
		p.playTimer.Stop()
		p.playTimer = nil
	}
}

// Seek 直接跳帧，越界钳到有效范围。不触发渲染，由调用方决定何时取图
func (p *Player) Seek(index int) {
	if p.anim == nil {
		return
	}
	p.current = clampv(index, 0, p.anim.FrameCount()-1)
}

// Step 相对跳帧，跨过两端时回绕
func (p *Player) Step(delta int) {
	if p.anim == nil {
		return
	}
	n := p.anim.FrameCount()
	p.current = ((p.current+delta)%n + n) % n
}

// OnResize 记录新的目标尺寸并启动去抖。宽高相对上次渲染尺寸
// 都在阈值以内的抖动会被整个忽略，连基线都不更新
func (p *Player) OnResize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	if p.lastW != 0 || p.lastH != 0 {
		if absi(w-p.lastW) <= p.epsilonPx && absi(h-p.lastH) <= p.epsilonPx {
			return
		}
	}

	p.targetW, p.targetH = w, h
	// 尺寸一旦真的变了，旧尺寸的缓存条目不可能再被请求到
	p.cache.Clear()

	p.resizeGen++
	gen := p.resizeGen
	if p.resizeTimer != nil {
		p.resizeTimer.Stop()
	}
	p.resizeTimer = time.AfterFunc(resizeDebounce, func() {
		p.dispatch(func() {
			if gen != p.resizeGen {
				return // 已被更新的resize顶掉
			}
			p.resizeTimer = nil
			if p.anim == nil {
				return
			}
			if img, err := p.GetOrRender(p.current, p.targetW, p.targetH); err == nil && p.onFrame != nil {
				p.onFrame(p.current, img)
			}
		})
	})
}

// TickDelay 一次tick的实际延时：帧时长除以倍率，再钳到下限
func TickDelay(d time.Duration, s Speed) time.Duration {
	if s <= 0 {
		s = SpeedNormal
	}
	out := time.Duration(float64(d) / float64(s))
	if out < MinTickDelay {
		out = MinTickDelay
	}
	return out
}

// 用当前帧的时长武装下一次tick，旧的挂起定时器直接顶掉
func (p *Player) armTick() {
	fr, err := p.anim.FrameAt(p.current)
	if err != nil {
		p.Stop()
		return
	}
	delay := TickDelay(fr.Duration, p.speed)

	p.playGen++
	gen := p.playGen
	if p.playTimer != nil {
		p.playTimer.Stop()
	}
	p.playTimer = time.AfterFunc(delay, func() {
		p.dispatch(func() {
			if gen != p.playGen || !p.playing {
				return
			}
			p.tick()
		})
	})
}

// 前进一帧（回绕）、出图、再武装定时器。只会从Playing状态进来
func (p *Player) tick() {
	n := p.anim.FrameCount()
	p.current = (p.current + 1) % n
	if img, err := p.GetOrRender(p.current, p.targetW, p.targetH); err == nil && p.onFrame != nil {
		p.onFrame(p.current, img)
	}
	p.armTick()
}

// 等比缩放进目标框，不放也不裁。尺寸没变时直接复用原图
func fitToBox(src *image.RGBA, w, h int) image.Image {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return src
	}

	scale := math.Min(float64(w)/float64(sw), float64(h)/float64(sh))
	tw := int(float64(sw) * scale)
	th := int(float64(sh) * scale)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	if tw == sw && th == sh {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, nil)
	return dst
}

func clampv[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absi(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
