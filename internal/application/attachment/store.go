// Package attachment 管理下一条消息携带的参考图
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/metrics"
)

const (
	// DefaultMaxFiles 同时也是槽位数的硬上限
	DefaultMaxFiles    = 4
	DefaultMaxFileSize = 10 << 20
)

// ErrIndexOutOfRange 删除的槽位不存在
var ErrIndexOutOfRange = errors.New("attachment index out of range")

// File 待导入文件，Open 可被调用一次
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Slot 一个参考图位，索引 0 为基准图
type Slot struct {
	Name    string `json:"name"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	DataURI string `json:"data_uri"`
	Base    bool   `json:"base"`
}

// IngestReport 一次导入的结果统计
type IngestReport struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Ignored  int `json:"ignored"`
}

// Store 参考图槽位，最多 maxFiles 个
type Store struct {
	mu       sync.RWMutex
	slots    []Slot
	maxFiles int
	maxSize  int64
	onChange func()
}

// NewStore 创建附件存储，onChange 在每次可见变更后调用（锁外）
// maxFiles 超过 DefaultMaxFiles 时按 DefaultMaxFiles 处理
func NewStore(maxFiles int, maxSize int64, onChange func()) *Store {
	if maxFiles <= 0 || maxFiles > DefaultMaxFiles {
		maxFiles = DefaultMaxFiles
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Store{
		maxFiles: maxFiles,
		maxSize:  maxSize,
		onChange: onChange,
	}
}

// Ingest 并发读取文件，全部结束后按输入顺序一次性提交
// 非图片或超限的文件被丢弃，不影响其他文件；超出剩余槽位的文件被忽略
func (s *Store) Ingest(ctx context.Context, files []File) IngestReport {
	var report IngestReport

	free := s.maxFiles - s.Count()
	candidates := make([]File, 0, len(files))
	for _, f := range files {
		if !s.admissible(f) {
			report.Rejected++
			continue
		}
		if len(candidates) >= free {
			report.Ignored++
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		s.observe(ctx, report)
		return report
	}

	results := make([]*Slot, len(candidates))
	var g errgroup.Group
	g.SetLimit(len(candidates))
	for i, f := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			slot, err := s.read(f)
			if err != nil {
				logger.Debug(ctx, "attachment dropped", "name", f.Name, "reason", err.Error())
				return nil
			}
			results[i] = slot
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	for _, slot := range results {
		if slot == nil {
			report.Rejected++
			continue
		}
		if len(s.slots) >= s.maxFiles {
			report.Ignored++
			continue
		}
		s.slots = append(s.slots, *slot)
		report.Accepted++
	}
	s.mu.Unlock()

	if report.Accepted > 0 {
		s.changed()
	}
	s.observe(ctx, report)
	return report
}

// Remove 删除指定槽位，后续元素前移
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.slots) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.slots = append(s.slots[:index], s.slots[index+1:]...)
	s.mu.Unlock()

	s.changed()
	return nil
}

// Clear 清空全部槽位
func (s *Store) Clear() {
	s.mu.Lock()
	had := len(s.slots) > 0
	s.slots = nil
	s.mu.Unlock()

	if had {
		s.changed()
	}
}

// Take 取出全部槽位并清空，用于发送消息
func (s *Store) Take() []Slot {
	s.mu.Lock()
	slots := s.slots
	s.slots = nil
	s.mu.Unlock()

	if len(slots) > 0 {
		s.changed()
	}
	return markBase(slots)
}

// List 返回槽位副本
func (s *Store) List() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return markBase(append([]Slot(nil), s.slots...))
}

// Count 当前槽位数
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// MaxFiles 槽位上限
func (s *Store) MaxFiles() int { return s.maxFiles }

func (s *Store) admissible(f File) bool {
	if f.Open == nil {
		return false
	}
	if f.Size > s.maxSize {
		return false
	}
	ct := strings.TrimSpace(f.ContentType)
	if ct != "" && ct != "application/octet-stream" && !strings.HasPrefix(ct, "image/") {
		return false
	}
	return true
}

// read 读取文件并按内容嗅探类型，声明的大小不可信，读取时再次限制
func (s *Store) read(f File) (*Slot, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("file exceeds %d bytes", s.maxSize)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("not an image: %s", mt.String())
	}

	return &Slot{
		Name:    f.Name,
		MIME:    mt.String(),
		Size:    int64(len(data)),
		DataURI: "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Store) observe(ctx context.Context, r IngestReport) {
	metrics.AttachmentIngestTotal.WithLabelValues("accepted").Add(float64(r.Accepted))
	metrics.AttachmentIngestTotal.WithLabelValues("rejected").Add(float64(r.Rejected))
	metrics.AttachmentIngestTotal.WithLabelValues("ignored").Add(float64(r.Ignored))
	logger.Debug(ctx, "attachments ingested",
		"accepted", r.Accepted,
		"rejected", r.Rejected,
		"ignored", r.Ignored,
	)
}

// DataURIs 提取 data URI 列表
func DataURIs(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.DataURI)
	}
	return out
}

func markBase(slots []Slot) []Slot {
	for i := range slots {
		slots[i].Base = i == 0
	}
	return slots
}
