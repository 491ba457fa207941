package statement

import (
	"context"
	"time"

	"github.com/hatlonely/repodb/cfg"
	"github.com/hatlonely/repodb/log"
	"github.com/hatlonely/repodb/rdb/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObservableMetrics 编译相关的 prometheus 指标
type ObservableMetrics struct {
	compileCounter  *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	counter, err := register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_compile_total",
			Help: "Total number of statement compilations",
		},
		[]string{"command", "status"},
	))
	if err != nil {
		return nil, err
	}

	duration, err := register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_compile_duration_seconds",
			Help:    "Duration of statement compilations in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
		[]string{"command"},
	))
	if err != nil {
		return nil, err
	}

	return &ObservableMetrics{compileCounter: counter, compileDuration: duration}, nil
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	if err := registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, errors.Wrap(err, "failed to register collector")
	}
	return collector, nil
}

// ObservableCompiler 装饰器，为编译器添加指标、追踪和日志
type ObservableCompiler struct {
	compiler Interface

	logger        log.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableCompilerWithOptions(compiler Interface, options *ObservableOptions) (*ObservableCompiler, error) {
	return NewObservableCompilerWithRegisterer(compiler, options, prometheus.DefaultRegisterer)
}

func NewObservableCompilerWithRegisterer(compiler Interface, options *ObservableOptions, registerer prometheus.Registerer) (*ObservableCompiler, error) {
	if compiler == nil {
		return nil, errors.New("compiler is nil")
	}
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "failed to set default options")
	}
	if err := cfg.ValidateStruct(options); err != nil {
		return nil, errors.WithMessage(err, "invalid options")
	}

	obs := &ObservableCompiler{
		compiler:      compiler,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l.WithGroup("observableCompiler")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Name, registerer)
		if err != nil {
			return nil, err
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer("statement." + options.Name)
	}

	return obs, nil
}

func (obs *ObservableCompiler) Compile(m *model.TableModel, req *Request) (*Statement, error) {
	return obs.CompileContext(context.Background(), m, req)
}

func (obs *ObservableCompiler) CompileContext(ctx context.Context, m *model.TableModel, req *Request) (*Statement, error) {
	start := time.Now()
	command := "unknown"
	if req != nil {
		command = string(req.Command)
	}
	table := ""
	if m != nil {
		table = m.Table
	}

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, obs.name+".compile",
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("table", table),
				attribute.String("command", command),
			),
		)
		defer span.End()
	}

	st, err := obs.compiler.CompileContext(ctx, m, req)
	duration := time.Since(start)

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetAttributes(attribute.Int("parameters", len(st.Parameters)))
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.compileCounter.WithLabelValues(command, status).Inc()
		obs.metrics.compileDuration.WithLabelValues(command).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil {
		if err != nil {
			obs.logger.WarnContext(ctx, "compile failed",
				"component", obs.name,
				"table", table,
				"command", command,
				"duration_us", duration.Microseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "compile completed",
				"component", obs.name,
				"table", table,
				"command", command,
				"duration_us", duration.Microseconds(),
			)
		}
	}

	return st, err
}
