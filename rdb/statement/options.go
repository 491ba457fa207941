package statement

import (
	"time"

	"github.com/hatlonely/repodb/log"
)

type Options struct {
	// KeyStrategies 隐式主键的推断顺序，名字需已通过 RegisterKeyStrategy 注册
	KeyStrategies []string `cfg:"keyStrategies" def:"primary,convention,identity" validate:"dive,required"`

	// DefaultBatchSize bulkInsert 未指定行数时使用
	DefaultBatchSize int `cfg:"defaultBatchSize" def:"10" validate:"min=1"`

	// TextCache 为 nil 时不缓存语句文本
	TextCache *TextCacheOptions `cfg:"textCache"`

	// Logger 为 nil 时使用默认日志器
	Logger *log.Options `cfg:"logger"`
}

type TextCacheOptions struct {
	// Size 缓存字节数，freecache 最小 512KB
	Size int `cfg:"size" def:"1048576" validate:"min=524288"`

	// TTL 为 0 时不过期
	TTL time.Duration `cfg:"ttl"`
}

// ObservableOptions 观测装饰器配置
type ObservableOptions struct {
	// Name 组件名称，作为指标前缀和 span 名前缀
	Name string `cfg:"name" def:"repodb" validate:"required"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`

	Logger *log.Options `cfg:"logger"`
}
