package dirscan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// Entry 目录里的一个GIF文件，侧边栏列表的一行
type Entry struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// SizeText 人类可读的文件大小
func (e Entry) SizeText() string {
	return humanize.IBytes(uint64(e.Size))
}

// ModTimeText 列表里显示的修改时间
func (e Entry) ModTimeText() string {
	return e.ModTime.Format("2006-01-02 15:04")
}

// DisplayName 按显示宽度截断的文件名，CJK字符按双宽算
func (e Entry) DisplayName(limit int) string {
	return runewidth.Truncate(e.Name, limit, "...")
}

// SortMode 列表排序方式，跟界面上的四个选项一一对应
type SortMode int

const (
	SortNameAsc SortMode = iota
	SortNameDesc
	SortTimeAsc
	SortTimeDesc
)

// SortOptions 界面下拉框的文案，下标就是SortMode
var SortOptions = []string{
	"Name (A-Z)",
	"Name (Z-A)",
	"Time (Old-New)",
	"Time (New-Old)",
}

// Scan 列出目录下所有GIF普通文件（扩展名不区分大小写），不排序
func Scan(dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(item.Name())) != ".gif" {
			continue
		}
		info, err := item.Info()
		if err != nil {
			// 列目录和取属性之间文件可能刚好被删了，跳过就行
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(dir, item.Name()),
			Name:    item.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return entries, nil
}

// SortEntries 原地排序，文件名比较不区分大小写
func SortEntries(entries []Entry, mode SortMode) {
	switch mode {
	case SortNameAsc:
		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
		})
	case SortNameDesc:
		sort.Slice(entries, func(i, j int) bool {
			return strings.ToLower(entries[i].Name) > strings.ToLower(entries[j].Name)
		})
	case SortTimeAsc:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].ModTime.Before(entries[j].ModTime)
		})
	case SortTimeDesc:
		sort.Slice(entries, func(i, j int) bool {
			return entries[j].ModTime.Before(entries[i].ModTime)
		})
	}
}

// IndexOf current在列表里的位置，找不到返回-1
func IndexOf(entries []Entry, current string) int {
	for i, e := range entries {
		if e.Path == current {
			return i
		}
	}
	return -1
}

// Adjacent 相对当前文件偏移offset个位置的文件路径（两端回绕）。
// 当前文件不在列表里时退回第一个。列表为空返回false
func Adjacent(entries []Entry, current string, offset int) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	idx := IndexOf(entries, current)
	if idx < 0 {
		return entries[0].Path, true
	}
	n := len(entries)
	next := ((idx+offset)%n + n) % n
	return entries[next].Path, true
}
