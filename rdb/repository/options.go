package repository

import (
	"database/sql"
	"time"

	"github.com/hatlonely/repodb/cfg"
	"github.com/hatlonely/repodb/log"
	"github.com/hatlonely/repodb/rdb/statement"
	"github.com/pkg/errors"
)

// DBOptions 数据库连接配置
type DBOptions struct {
	Driver          string        `cfg:"driver" def:"sqlite3" validate:"required"`
	DSN             string        `cfg:"dsn" validate:"required"`
	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime"`
}

// Options 仓储配置，可以整体从配置文件加载
type Options struct {
	DB         DBOptions                    `cfg:"db"`
	BatchSize  int                          `cfg:"batchSize" def:"10" validate:"min=1"`
	Compiler   statement.Options            `cfg:"compiler"`
	Observable *statement.ObservableOptions `cfg:"observable"`
	Logger     *log.Options                 `cfg:"logger"`
}

// Open 打开数据库连接并 Ping
func Open(options *DBOptions) (*sql.DB, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "failed to set default options")
	}
	if err := cfg.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(err, "invalid db options")
	}

	db, err := sql.Open(options.Driver, options.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", options.Driver)
	}
	db.SetMaxOpenConns(options.MaxConns)
	db.SetMaxIdleConns(options.MaxIdle)
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return db, nil
}

// NewCompiler 按配置创建编译器，配置了 Observable 时套上观测装饰器
func NewCompiler(options *Options) (statement.Interface, error) {
	compiler, err := statement.NewCompilerWithOptions(&options.Compiler)
	if err != nil {
		return nil, err
	}
	if options.Observable == nil {
		return compiler, nil
	}
	return statement.NewObservableCompilerWithOptions(compiler, options.Observable)
}

// NewWithOptions 打开连接、创建编译器并构建仓储
func NewWithOptions[T any](options *Options) (*Repository[T], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "failed to set default options")
	}

	db, err := Open(&options.DB)
	if err != nil {
		return nil, err
	}
	compiler, err := NewCompiler(options)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "failed to create logger")
	}

	repo, err := New[T](db, compiler, WithBatchSize(options.BatchSize), WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

type settings struct {
	batchSize int
	logger    log.Logger
}

type Option func(*settings)

// WithBatchSize bulkInsert 每条语句的行数
func WithBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// MergeOptions merge/inlineMerge 的可选参数
type MergeOptions struct {
	Qualifiers     []string
	Fields         []string
	OverrideIgnore bool
}

// QueryOptions 查询的可选参数
type QueryOptions struct {
	Qualifiers []string
	Fields     []string
	OrderBy    []statement.OrderField
	Top        int
}
