package cfg

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Provider 配置数据来源
type Provider interface {
	Load() ([]byte, error)
	OnChange(fn func(data []byte) error)
	Watch() error
	Close() error
}

type FileProviderOptions struct {
	FilePath string `cfg:"filePath" validate:"required"`
}

// FileProvider 从文件读取配置，Watch 之后文件写入会触发 OnChange 回调
type FileProvider struct {
	filePath string
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	onChange []func(data []byte) error
	onError  func(err error)
	once     sync.Once
}

func NewFileProviderWithOptions(options *FileProviderOptions) (*FileProvider, error) {
	if options == nil || options.FilePath == "" {
		return nil, errors.New("file path is required")
	}

	absPath, err := filepath.Abs(options.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file path")
	}

	return &FileProvider{filePath: absPath}, nil
}

func (p *FileProvider) Path() string {
	return p.filePath
}

func (p *FileProvider) Load() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, err := os.ReadFile(p.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}
	return data, nil
}

func (p *FileProvider) OnChange(fn func(data []byte) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// OnError 回调返回的错误和监听器错误都会交给 fn
func (p *FileProvider) OnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *FileProvider) Watch() error {
	var initErr error
	p.once.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			initErr = errors.Wrap(err, "failed to create file watcher")
			return
		}

		// 监听目录而不是文件，编辑器保存时常常是 rename + create
		if err := watcher.Add(filepath.Dir(p.filePath)); err != nil {
			watcher.Close()
			initErr = errors.Wrap(err, "failed to add directory to watcher")
			return
		}

		p.mu.Lock()
		p.watcher = watcher
		p.mu.Unlock()

		go p.loop(watcher)
	})
	return initErr
}

func (p *FileProvider) loop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.filePath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(p.filePath)
			if err != nil {
				p.reportError(errors.Wrap(err, "failed to reload file"))
				continue
			}

			p.mu.RLock()
			handlers := make([]func(data []byte) error, len(p.onChange))
			copy(handlers, p.onChange)
			p.mu.RUnlock()

			for _, handler := range handlers {
				if err := handler(data); err != nil {
					p.reportError(err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.reportError(errors.Wrap(err, "file watcher error"))
		}
	}
}

func (p *FileProvider) reportError(err error) {
	p.mu.RLock()
	fn := p.onError
	p.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		err := p.watcher.Close()
		p.watcher = nil
		return err
	}
	return nil
}
