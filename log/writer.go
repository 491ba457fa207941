package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// WriterOptions 输出目标配置
// Target 为 stdout、stderr 或 file，file 时使用 Path
type WriterOptions struct {
	Target string   `cfg:"target" def:"stdout" validate:"omitempty,oneof=stdout stderr file"`
	Path   string   `cfg:"path" validate:"required_if=Target file"`
	Tee    []string `cfg:"tee"` // 额外写入的文件
}

func NewWriterWithOptions(options *WriterOptions) (Writer, error) {
	if options == nil {
		options = &WriterOptions{}
	}

	var primary Writer
	switch options.Target {
	case "", "stdout":
		primary = &ConsoleWriter{writer: os.Stdout}
	case "stderr":
		primary = &ConsoleWriter{writer: os.Stderr}
	case "file":
		w, err := NewFileWriter(options.Path)
		if err != nil {
			return nil, err
		}
		primary = w
	default:
		return nil, errors.Errorf("unsupported target: %s", options.Target)
	}

	if len(options.Tee) == 0 {
		return primary, nil
	}

	writers := []Writer{primary}
	for _, path := range options.Tee {
		w, err := NewFileWriter(path)
		if err != nil {
			for _, opened := range writers {
				opened.Close()
			}
			return nil, err
		}
		writers = append(writers, w)
	}
	return &MultiWriter{writers: writers}, nil
}

// ConsoleWriter 控制台输出器，Close 不关闭标准输出
type ConsoleWriter struct {
	writer io.Writer
}

func (c *ConsoleWriter) Write(p []byte) (int, error) {
	return c.writer.Write(p)
}

func (c *ConsoleWriter) Close() error {
	return nil
}

// FileWriter 追加写文件
type FileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func NewFileWriter(path string) (*FileWriter, error) {
	if path == "" {
		return nil, errors.New("file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", path)
	}
	return &FileWriter{path: path, file: file}, nil
}

func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return 0, errors.Errorf("file %s is closed", f.path)
	}
	return f.file.Write(p)
}

func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// MultiWriter 同时写入多个输出器，任意一个失败即返回错误
type MultiWriter struct {
	writers []Writer
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (m *MultiWriter) Close() error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
