package cfg

import (
	"sync"

	"github.com/hatlonely/repodb/log"
	"github.com/pkg/errors"
)

// Config 配置管理器，文件 -> 解码 -> MapStorage
// 调用 Watch 之后文件变化会重新解码并触发 OnChange 回调
type Config struct {
	provider Provider
	decoder  Decoder
	logger   log.Logger

	mu       sync.RWMutex
	storage  *MapStorage
	handlers []func(*Config) error

	closeOnce sync.Once
	closeErr  error
}

// NewConfig 从文件创建配置，格式由扩展名决定
func NewConfig(filename string) (*Config, error) {
	provider, err := NewFileProviderWithOptions(&FileProviderOptions{FilePath: filename})
	if err != nil {
		return nil, err
	}
	decoder, err := NewDecoderForFile(filename)
	if err != nil {
		return nil, err
	}
	return NewConfigWithProvider(provider, decoder)
}

// NewConfigWithProvider 使用自定义 Provider 和 Decoder 创建配置
func NewConfigWithProvider(provider Provider, decoder Decoder) (*Config, error) {
	if provider == nil || decoder == nil {
		return nil, errors.New("provider and decoder are required")
	}

	data, err := provider.Load()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load data from provider")
	}
	storage, err := decoder.Decode(data)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to decode data")
	}

	c := &Config{
		provider: provider,
		decoder:  decoder,
		logger:   log.Default().WithGroup("cfg"),
		storage:  storage,
	}
	provider.OnChange(c.handleChange)
	if fp, ok := provider.(*FileProvider); ok {
		fp.OnError(func(err error) {
			c.logger.Warn("config reload failed", "error", err.Error())
		})
	}
	return c, nil
}

// NewConfigFromData 从内存数据创建不可监听的配置
func NewConfigFromData(data any) *Config {
	return &Config{
		logger:  log.Default().WithGroup("cfg"),
		storage: NewMapStorage(normalize(data)),
	}
}

func (c *Config) SetLogger(logger log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Storage 返回当前的配置存储
func (c *Config) Storage() *MapStorage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.storage
}

// Sub 获取子配置存储
func (c *Config) Sub(key string) *MapStorage {
	return c.Storage().Sub(key)
}

// ConvertTo 将配置数据转成结构体
func (c *Config) ConvertTo(object any) error {
	return c.Storage().ConvertTo(object)
}

// OnChange 监听配置变更，回调在 Watch 之后生效
func (c *Config) OnChange(fn func(*Config) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Watch 启动配置变更监听，没有 Provider 的配置直接返回
func (c *Config) Watch() error {
	if c.provider == nil {
		return nil
	}
	return c.provider.Watch()
}

func (c *Config) Close() error {
	c.closeOnce.Do(func() {
		if c.provider != nil {
			c.closeErr = c.provider.Close()
		}
	})
	return c.closeErr
}

func (c *Config) handleChange(data []byte) error {
	storage, err := c.decoder.Decode(data)
	if err != nil {
		// 写入过程中可能读到半个文件，保留旧配置
		return errors.WithMessage(err, "failed to decode changed data")
	}

	c.mu.Lock()
	c.storage = storage
	handlers := make([]func(*Config) error, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	c.logger.Info("config changed", "handlers", len(handlers))
	for _, handler := range handlers {
		if err := handler(c); err != nil {
			return err
		}
	}
	return nil
}
