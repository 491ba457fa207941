// rdbc 从声明式 schema 编译语句并打印，用于检查生成的 SQL
//
//	rdbc -schema schema.yaml -record Widget -command merge -fields Field1,Field2 -qualifiers Field1
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hatlonely/repodb/cfg"
	"github.com/hatlonely/repodb/log"
	"github.com/hatlonely/repodb/rdb/model"
	"github.com/hatlonely/repodb/rdb/statement"
	"github.com/pkg/errors"
)

// Version 构建时通过 -ldflags 设置
var Version = "dev"

// Options -config 指定的配置文件内容
type Options struct {
	Compiler statement.Options `cfg:"compiler"`
	Logger   *log.Options      `cfg:"logger"`
}

type flags struct {
	schema         string
	record         string
	command        string
	fields         string
	qualifiers     string
	overrideIgnore bool
	field          string
	orderBy        string
	top            int
	page           int
	rows           int
	batch          int
	config         string
	watch          bool
	version        bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("rdbc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.schema, "schema", "", "schema file (yaml/json/toml/ini)")
	fs.StringVar(&f.record, "record", "", "record name declared in the schema")
	fs.StringVar(&f.command, "command", "", "insert|bulkInsert|update|delete|deleteAll|merge|inlineMerge|query|queryAll|batchQuery|average|count|max|min|sum")
	fs.StringVar(&f.fields, "fields", "", "comma separated fields, all fields when empty")
	fs.StringVar(&f.qualifiers, "qualifiers", "", "comma separated qualifier fields, implicit key when empty")
	fs.BoolVar(&f.overrideIgnore, "override-ignore", false, "include fields ignored for merge")
	fs.StringVar(&f.field, "field", "", "target field of an aggregate")
	fs.StringVar(&f.orderBy, "order", "", "comma separated order fields, e.g. \"Name desc,Id\"")
	fs.IntVar(&f.top, "top", 0, "max rows of query")
	fs.IntVar(&f.page, "page", 0, "0-based page of batchQuery")
	fs.IntVar(&f.rows, "rows", 0, "rows per batch of batchQuery")
	fs.IntVar(&f.batch, "batch", 0, "rows of bulkInsert")
	fs.StringVar(&f.config, "config", "", "compiler config file")
	fs.BoolVar(&f.watch, "watch", false, "recompile when the schema file changes")
	fs.BoolVar(&f.version, "version", false, "show version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.version {
		return f, nil
	}
	if f.schema == "" || f.record == "" || f.command == "" {
		return nil, errors.New("-schema, -record and -command are required")
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (f *flags) request() (*statement.Request, error) {
	cmd, err := model.ParseCommand(f.command)
	if err != nil {
		return nil, err
	}
	req := &statement.Request{
		Command:        cmd,
		Fields:         splitList(f.fields),
		Qualifiers:     splitList(f.qualifiers),
		OverrideIgnore: f.overrideIgnore,
		Field:          f.field,
		Top:            f.top,
		Page:           f.page,
		RowsPerBatch:   f.rows,
		BatchSize:      f.batch,
	}
	for _, s := range splitList(f.orderBy) {
		order, err := statement.ParseOrderField(s)
		if err != nil {
			return nil, err
		}
		req.OrderBy = append(req.OrderBy, order)
	}
	return req, nil
}

func loadOptions(filename string) (*Options, error) {
	options := &Options{}
	if filename == "" {
		return options, cfg.SetDefaults(options)
	}
	config, err := cfg.NewConfig(filename)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load config %s", filename)
	}
	defer config.Close()
	if err := config.ConvertTo(options); err != nil {
		return nil, errors.WithMessage(err, "failed to convert config")
	}
	return options, nil
}

// app 持有编译器和当前请求，schema 变化时重新注册并编译
type app struct {
	compiler *statement.Compiler
	request  *statement.Request
	record   string
	stdout   io.Writer
	logger   log.Logger
}

func (a *app) reload(config *cfg.Config) error {
	schema, err := model.SchemaFromConfig(config)
	if err != nil {
		return err
	}
	a.compiler.Reset()
	if err := schema.Register(a.compiler.Models()); err != nil {
		return err
	}
	return a.print()
}

func (a *app) print() error {
	st, err := a.compiler.CompileFor(a.record, a.request)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, st.Text)
	if len(st.Parameters) != 0 {
		params := make([]string, len(st.Parameters))
		for i, name := range st.Parameters {
			params[i] = "@" + name
		}
		fmt.Fprintf(a.stdout, "parameters: %s\n", strings.Join(params, ", "))
	}
	return nil
}

// run 执行一次编译，watch 时阻塞到 stop 关闭
func run(args []string, stdout, stderr io.Writer, stop <-chan struct{}) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Fprintf(stdout, "rdbc %s\n", Version)
		return nil
	}

	options, err := loadOptions(f.config)
	if err != nil {
		return err
	}
	logger, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return errors.WithMessage(err, "failed to create logger")
	}
	if options.Compiler.Logger == nil {
		options.Compiler.Logger = options.Logger
	}
	compiler, err := statement.NewCompilerWithOptions(&options.Compiler)
	if err != nil {
		return err
	}
	req, err := f.request()
	if err != nil {
		return err
	}

	config, err := cfg.NewConfig(f.schema)
	if err != nil {
		return errors.WithMessagef(err, "failed to load schema %s", f.schema)
	}
	defer config.Close()
	config.SetLogger(logger.WithGroup("schema"))

	a := &app{compiler: compiler, request: req, record: f.record, stdout: stdout, logger: logger}
	if err := a.reload(config); err != nil {
		return err
	}
	if !f.watch {
		return nil
	}

	config.OnChange(func(c *cfg.Config) error {
		if err := a.reload(c); err != nil {
			a.logger.Warn("recompile failed", "schema", f.schema, "error", err.Error())
			return err
		}
		return nil
	})
	if err := config.Watch(); err != nil {
		return errors.WithMessage(err, "failed to watch schema")
	}
	logger.Info("watching schema", "schema", f.schema)
	<-stop
	return nil
}

func main() {
	stop := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		close(stop)
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr, stop); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "rdbc: %v\n", err)
		os.Exit(1)
	}
}
