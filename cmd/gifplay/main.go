package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"gif_tool/pkg/dirscan"
	"gif_tool/pkg/errorutil"
	"gif_tool/pkg/frameexport"
	"gif_tool/pkg/gifstore"
	"gif_tool/pkg/logutil"
	"gif_tool/pkg/render"
	"gif_tool/pkg/thumb"
	"gif_tool/pkg/uiscale"
)

const (
	toolVersion = "0.2.0"

	appTitle       = "GIF Animator"
	configFileName = ".gifplay_config.json"

	// 侧边栏缩略图边长（逻辑像素）
	thumbEdge = 40
	// 文件名在列表里的显示宽度上限
	nameDisplayWidth = 26

	appIconSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32">
  <rect x="2" y="6" width="28" height="20" rx="3" fill="#3d8bfd"/>
  <path fill="#ffffff" d="M13 11L22 16L13 21Z"/>
</svg>`
)

// GifAnimator 把播放核心和Fyne界面攒到一起的壳。
// 所有状态只在UI线程上碰：定时器回调经由fyne.Do回到UI线程
type GifAnimator struct {
	fyneApp fyne.App
	window  fyne.Window
	scale   float64

	player *render.Player
	thumbs *thumb.Cache

	currentFile string
	currentDir  string
	entries     []dirscan.Entry
	sortMode    dirscan.SortMode

	preview    *previewPanel
	fileList   *widget.List
	sortSelect *widget.Select
	slider     *widget.Slider
	frameInfo  *widget.Label
	statusBar  *widget.Label
	playBtn    *widget.Button
	speedRadio *widget.RadioGroup

	// 程序自己拨滑块时的回环保护
	updatingSlider bool

	configPath string
}

// ========== 预览面板：能把自己的尺寸变化上报出去的自定义控件 ==========

type previewPanel struct {
	widget.BaseWidget
	image    *canvas.Image
	onResize func(w, h int)
}

func newPreviewPanel(onResize func(w, h int)) *previewPanel {
	p := &previewPanel{
		image:    canvas.NewImageFromImage(nil),
		onResize: onResize,
	}
	// 渲染结果本来就是按面板尺寸等比缩好的，这里只管居中摆放
	p.image.FillMode = canvas.ImageFillContain
	p.ExtendBaseWidget(p)
	return p
}

func (p *previewPanel) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(p.image)
}

func (p *previewPanel) Resize(size fyne.Size) {
	p.BaseWidget.Resize(size)
	if p.onResize != nil {
		p.onResize(int(size.Width), int(size.Height))
	}
}

func (p *previewPanel) SetImage(img image.Image) {
	p.image.Image = img
	p.image.Refresh()
}

// ========== 配置：主目录下的一个小JSON ==========

// 读不到、读坏了都当没有，逐字段取值所以旧版本的配置也能用
func (a *GifAnimator) loadConfig() {
	data, err := os.ReadFile(a.configPath)
	if err != nil {
		return
	}
	if v := gjson.GetBytes(data, "lastDir"); v.Exists() {
		a.currentDir = v.String()
	}
	if v := gjson.GetBytes(data, "sortMode"); v.Exists() {
		m := int(v.Int())
		if m >= 0 && m < len(dirscan.SortOptions) {
			a.sortMode = dirscan.SortMode(m)
		}
	}
	if v := gjson.GetBytes(data, "speed"); v.Exists() {
		a.player.SetSpeed(render.Speed(v.Float()))
	}
}

func (a *GifAnimator) saveConfig() {
	data := []byte("{}")
	data, _ = sjson.SetBytes(data, "lastDir", a.currentDir)
	data, _ = sjson.SetBytes(data, "sortMode", int(a.sortMode))
	data, _ = sjson.SetBytes(data, "speed", float64(a.player.Speed()))
	if err := os.WriteFile(a.configPath, pretty.Pretty(data), 0644); err != nil {
		logutil.Warn("配置保存失败: %v", err)
	}
}

// ========== 加载与展示 ==========

// loadGIF 打开一个GIF。失败只弹错误框，当前动画原样保留
func (a *GifAnimator) loadGIF(path string) {
	anim, err := gifstore.Load(path)
	if err != nil {
		logutil.Error("GIF加载失败 %s: %v", path, err)
		dialog.ShowError(err, a.window)
		return
	}

	a.player.SetAnimation(anim)
	a.currentFile = anim.Path()
	a.currentDir = filepath.Dir(a.currentFile)
	a.thumbs.Invalidate(a.currentFile)

	a.refreshFileList()
	a.selectCurrentInList()
	a.updateSliderBounds()
	a.updatePlayIcon()
	a.showCurrentFrame()

	a.window.SetTitle(appTitle + " - " + filepath.Base(a.currentFile))
	a.statusBar.SetText(fmt.Sprintf("%s (%d frames)", a.currentFile, anim.FrameCount()))
	logutil.Info("已加载 %s, %d帧", a.currentFile, anim.FrameCount())
	a.saveConfig()
}

// 当前预览面板的可用像素。界面还没铺开时用按缩放放大的兜底值
func (a *GifAnimator) previewSize() (int, int) {
	sz := a.preview.Size()
	if sz.Width <= 1 || sz.Height <= 1 {
		return uiscale.Px(a.scale, 640), uiscale.Px(a.scale, 480)
	}
	return int(sz.Width), int(sz.Height)
}

func (a *GifAnimator) showCurrentFrame() {
	if a.player.FrameCount() == 0 {
		return
	}
	w, h := a.previewSize()
	img, err := a.player.GetOrRender(a.player.CurrentIndex(), w, h)
	if err != nil {
		logutil.Warn("帧渲染失败: %v", err)
		return
	}
	a.displayFrame(a.player.CurrentIndex(), img)
}

// displayFrame 同时也是播放定时器的出图回调（已在UI线程上）
func (a *GifAnimator) displayFrame(index int, img image.Image) {
	a.preview.SetImage(img)

	a.updatingSlider = true
	a.slider.SetValue(float64(index))
	a.updatingSlider = false

	a.frameInfo.SetText(fmt.Sprintf("Frame: %d / %d", index+1, a.player.FrameCount()))
}

func (a *GifAnimator) updateSliderBounds() {
	maxIndex := a.player.FrameCount() - 1
	if maxIndex < 0 {
		maxIndex = 0
	}
	a.updatingSlider = true
	a.slider.Max = float64(maxIndex)
	a.slider.SetValue(0)
	a.updatingSlider = false
	a.slider.Refresh()
}

// ========== 播放控制 ==========

func (a *GifAnimator) togglePlay() {
	if a.player.FrameCount() == 0 {
		return
	}
	if a.player.Playing() {
		a.player.Stop()
	} else {
		a.player.Play()
	}
	a.updatePlayIcon()
}

func (a *GifAnimator) stopAndRewind() {
	a.player.Stop()
	a.player.Seek(0)
	a.updatePlayIcon()
	a.showCurrentFrame()
}

func (a *GifAnimator) stepFrame(delta int) {
	if a.player.FrameCount() == 0 {
		return
	}
	a.player.Step(delta)
	a.showCurrentFrame()
}

func (a *GifAnimator) updatePlayIcon() {
	if a.player.Playing() {
		a.playBtn.SetIcon(theme.MediaPauseIcon())
	} else {
		a.playBtn.SetIcon(theme.MediaPlayIcon())
	}
}

// ========== 文件列表 ==========

func (a *GifAnimator) refreshFileList() {
	if a.currentDir == "" {
		return
	}
	entries, err := dirscan.Scan(a.currentDir)
	if err != nil {
		logutil.Warn("目录扫描失败 %s: %v", a.currentDir, err)
		return
	}
	dirscan.SortEntries(entries, a.sortMode)
	a.entries = entries
	a.fileList.Refresh()
}

func (a *GifAnimator) selectCurrentInList() {
	idx := dirscan.IndexOf(a.entries, a.currentFile)
	if idx >= 0 {
		a.fileList.Select(idx)
	}
}

// 相邻文件切换（回绕）
func (a *GifAnimator) openAdjacent(offset int) {
	path, ok := dirscan.Adjacent(a.entries, a.currentFile, offset)
	if !ok {
		return
	}
	if path != a.currentFile {
		a.loadGIF(path)
	}
}

func (a *GifAnimator) showOpenDialog() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		_ = reader.Close()
		a.loadGIF(path)
	}, a.window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".gif"}))
	if a.currentDir != "" {
		if lister, err := storage.ListerForURI(storage.NewFileURI(a.currentDir)); err == nil {
			fd.SetLocation(lister)
		}
	}
	fd.Show()
}

// ========== 帧导出 ==========

func (a *GifAnimator) showSaveFrameDialog() {
	fr, err := a.player.CurrentFrame()
	if err != nil {
		dialog.ShowInformation("Save Frame", "请先打开一个GIF文件", a.window)
		return
	}

	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		defer func() { _ = writer.Close() }()

		path := writer.URI().Path()
		if saveErr := frameexport.Save(path, fr.Image); saveErr != nil {
			logutil.Error("帧导出失败 %s: %v", path, saveErr)
			dialog.ShowError(saveErr, a.window)
			return
		}
		a.statusBar.SetText("Saved frame: " + path)
		logutil.Info("帧已导出: %s", path)
	}, a.window)

	fd.SetFileName(frameexport.DefaultName(a.currentFile, fr.Index))
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".gif"}))
	fd.Show()
}

// ========== 界面搭建 ==========

func (a *GifAnimator) buildUI() fyne.CanvasObject {
	a.preview = newPreviewPanel(func(w, h int) {
		a.player.OnResize(w, h)
	})

	a.frameInfo = widget.NewLabel("Frame: - / -")
	a.statusBar = widget.NewLabel("Open a GIF to start")

	a.slider = widget.NewSlider(0, 0)
	a.slider.Step = 1
	a.slider.OnChanged = func(v float64) {
		if a.updatingSlider {
			return
		}
		a.player.Stop()
		a.updatePlayIcon()
		a.player.Seek(int(v))
		a.showCurrentFrame()
	}

	a.playBtn = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), a.togglePlay)
	stopBtn := widget.NewButtonWithIcon("", theme.MediaStopIcon(), a.stopAndRewind)
	prevBtn := widget.NewButtonWithIcon("", theme.MediaSkipPreviousIcon(), func() { a.stepFrame(-1) })
	nextBtn := widget.NewButtonWithIcon("", theme.MediaSkipNextIcon(), func() { a.stepFrame(1) })

	a.speedRadio = widget.NewRadioGroup([]string{"0.5x", "1x", "2x"}, func(sel string) {
		switch sel {
		case "0.5x":
			a.player.SetSpeed(render.SpeedHalf)
		case "1x":
			a.player.SetSpeed(render.SpeedNormal)
		case "2x":
			a.player.SetSpeed(render.SpeedDouble)
		}
		a.saveConfig()
	})
	a.speedRadio.Horizontal = true
	a.speedRadio.Selected = speedLabel(a.player.Speed())

	saveBtn := widget.NewButtonWithIcon("Save Frame", theme.DocumentSaveIcon(), a.showSaveFrameDialog)

	controls := container.NewHBox(
		prevBtn, a.playBtn, stopBtn, nextBtn,
		widget.NewSeparator(),
		a.speedRadio,
		widget.NewSeparator(),
		a.frameInfo,
		saveBtn,
	)
	center := container.NewBorder(nil, container.NewVBox(a.slider, controls), nil, nil, a.preview)

	// --- 侧边栏 ---
	a.fileList = widget.NewList(
		func() int { return len(a.entries) },
		func() fyne.CanvasObject {
			img := canvas.NewImageFromImage(nil)
			img.FillMode = canvas.ImageFillContain
			edge := float32(uiscale.Px(a.scale, thumbEdge))
			img.SetMinSize(fyne.NewSize(edge, edge))
			name := widget.NewLabel("name")
			meta := widget.NewLabel("meta")
			return container.NewHBox(img, container.NewVBox(name, meta))
		},
		func(i widget.ListItemID, obj fyne.CanvasObject) {
			if i < 0 || i >= len(a.entries) {
				return
			}
			e := a.entries[i]
			row := obj.(*fyne.Container)
			img := row.Objects[0].(*canvas.Image)
			col := row.Objects[1].(*fyne.Container)
			col.Objects[0].(*widget.Label).SetText(e.DisplayName(nameDisplayWidth))
			col.Objects[1].(*widget.Label).SetText(e.ModTimeText() + "  " + e.SizeText())
			img.Image = a.thumbs.Get(e.Path, uiscale.Px(a.scale, thumbEdge))
			img.Refresh()
		},
	)
	a.fileList.OnSelected = func(id widget.ListItemID) {
		if id < 0 || id >= len(a.entries) {
			return
		}
		// 程序回选当前文件时也会走到这里，不要重复加载
		if a.entries[id].Path == a.currentFile {
			return
		}
		a.loadGIF(a.entries[id].Path)
	}

	a.sortSelect = widget.NewSelect(dirscan.SortOptions, func(sel string) {
		for i, opt := range dirscan.SortOptions {
			if opt == sel {
				a.sortMode = dirscan.SortMode(i)
				break
			}
		}
		a.refreshFileList()
		a.selectCurrentInList()
		a.saveConfig()
	})
	a.sortSelect.Selected = dirscan.SortOptions[a.sortMode]

	openBtn := widget.NewButtonWithIcon("Open...", theme.FolderOpenIcon(), a.showOpenDialog)
	prevFileBtn := widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() { a.openAdjacent(-1) })
	nextFileBtn := widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() { a.openAdjacent(1) })
	fileNav := container.NewHBox(prevFileBtn, nextFileBtn)

	sidebarTop := container.NewVBox(openBtn, a.sortSelect, fileNav)
	sidebar := container.NewBorder(sidebarTop, nil, nil, nil, a.fileList)

	split := container.NewHSplit(sidebar, center)
	split.SetOffset(0.22)

	return container.NewBorder(nil, a.statusBar, nil, nil, split)
}

func speedLabel(s render.Speed) string {
	switch s {
	case render.SpeedHalf:
		return "0.5x"
	case render.SpeedDouble:
		return "2x"
	default:
		return "1x"
	}
}

func (a *GifAnimator) bindKeyEvents(c fyne.Canvas) {
	c.SetOnTypedKey(func(k *fyne.KeyEvent) {
		switch k.Name {
		case fyne.KeySpace:
			a.togglePlay()
		case fyne.KeyRight, fyne.KeyL:
			a.stepFrame(1)
		case fyne.KeyLeft, fyne.KeyH:
			a.stepFrame(-1)
		case fyne.KeyS:
			a.stopAndRewind()
		case fyne.KeyPageUp:
			a.openAdjacent(-1)
		case fyne.KeyPageDown:
			a.openAdjacent(1)
		}
	})
}

// 从内置SVG现场栅格出窗口图标，省掉一个嵌入资源文件
func appIcon() fyne.Resource {
	icon, err := oksvg.ReadIconStream(strings.NewReader(appIconSVG))
	if err != nil {
		return theme.FileImageIcon()
	}
	const edge = 64
	icon.SetTarget(0, 0, edge, edge)

	rgba := image.NewRGBA(image.Rect(0, 0, edge, edge))
	scanner := rasterx.NewScannerGV(edge, edge, rgba, rgba.Bounds())
	raster := rasterx.NewDasher(edge, edge, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return theme.FileImageIcon()
	}
	return fyne.NewStaticResource("gifplay.png", buf.Bytes())
}

// ========== 入口 ==========

func runApp(startPath string, scaleOverride float64) error {
	scale := scaleOverride
	if scale <= 0 {
		scale = uiscale.Detect()
	}
	logutil.Debug("UI缩放系数: %.2f", scale)

	home, err := os.UserHomeDir()
	if err != nil {
		return errorutil.NewExitErrorWithMessage(
			errorutil.CodeIOError, "无法获取用户主目录", err)
	}

	fyneApp := app.NewWithID("com.example.gifplay")
	w := fyneApp.NewWindow(appTitle)
	w.SetIcon(appIcon())
	w.Resize(fyne.NewSize(
		float32(uiscale.Px(scale, 1100)),
		float32(uiscale.Px(scale, 720))))

	a := &GifAnimator{
		fyneApp:    fyneApp,
		window:     w,
		scale:      scale,
		thumbs:     thumb.NewCache(),
		configPath: filepath.Join(home, configFileName),
	}
	a.player = render.NewPlayer(
		func(f func()) { fyne.Do(f) },
		a.displayFrame,
		scale)

	a.loadConfig()
	w.SetContent(a.buildUI())
	a.bindKeyEvents(w.Canvas())

	w.SetOnDropped(func(_ fyne.Position, uris []fyne.URI) {
		for _, u := range uris {
			if strings.EqualFold(filepath.Ext(u.Path()), ".gif") {
				a.loadGIF(u.Path())
				return
			}
		}
	})

	switch {
	case startPath != "":
		a.loadGIF(startPath)
	case a.currentDir != "":
		// 没有显式指定文件就回到上次的目录
		a.refreshFileList()
	}

	w.ShowAndRun()

	a.player.Stop()
	a.saveConfig()
	return nil
}

func main() {
	var (
		logFile      string
		logLevelName string
		scaleFlag    float64
	)

	rootCmd := &cobra.Command{
		Use:           "gifplay [GIF文件]",
		Short:         fmt.Sprintf("gifplay v%s GIF动画浏览器", toolVersion),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logutil.LogLevels[strings.ToUpper(logLevelName)]
			if !ok {
				return errorutil.NewExitErrorWithMessage(errorutil.CodeInvalidUsage,
					"无效的日志级别: "+logLevelName, nil)
			}
			logutil.InitLogger(logFile, level)

			startPath := ""
			if len(args) == 1 {
				startPath = args[0]
			}
			return runApp(startPath, scaleFlag)
		},
	}

	rootCmd.Flags().StringVarP(&logFile, "log-file", "l", "stdout",
		"日志输出目标, stdout 或者文件路径")
	rootCmd.Flags().StringVarP(&logLevelName, "log-level", "e", "WARN",
		"日志级别: DEBUG INFO WARN ERROR")
	rootCmd.Flags().Float64VarP(&scaleFlag, "scale", "s", 0,
		"手动指定UI缩放系数, 0表示自动探测")

	if err := rootCmd.Execute(); err != nil {
		if msg := errorutil.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		// 这里不用defer, 是因为os.Exit不跑defer
		_ = logutil.CloseLogger()
		os.Exit(errorutil.ExitCodeFromError(err))
	}
	_ = logutil.CloseLogger()
}
