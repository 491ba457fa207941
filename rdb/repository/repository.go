package repository

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/hatlonely/repodb/log"
	"github.com/hatlonely/repodb/rdb/model"
	"github.com/hatlonely/repodb/rdb/statement"
	"github.com/pkg/errors"
)

var (
	ErrNilRecord       = errors.New("record is nil")
	ErrMissingArgument = errors.New("missing statement argument")
)

// Repository 以 T 为记录类型，执行编译器生成的语句
type Repository[T any] struct {
	db        *sql.DB
	compiler  statement.Interface
	model     *model.TableModel
	batchSize int
	logger    log.Logger
}

func New[T any](db *sql.DB, compiler statement.Interface, opts ...Option) (*Repository[T], error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if compiler == nil {
		return nil, errors.New("compiler is nil")
	}

	m, err := model.NewTableModelBuilder().FromType(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build table model")
	}

	s := &settings{batchSize: 10, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}

	return &Repository[T]{
		db:        db,
		compiler:  compiler,
		model:     m,
		batchSize: s.batchSize,
		logger:    s.logger.WithGroup("repository").With("table", m.Table),
	}, nil
}

func (r *Repository[T]) Model() *model.TableModel {
	return r.model
}

func (r *Repository[T]) DB() *sql.DB {
	return r.db
}

// Insert 插入一条记录，存在自增字段时回填 LastInsertId 并返回
func (r *Repository[T]) Insert(ctx context.Context, record *T) (int64, error) {
	if record == nil {
		return 0, ErrNilRecord
	}
	st, err := r.compile(ctx, &statement.Request{Command: model.CommandInsert})
	if err != nil {
		return 0, err
	}
	result, err := r.exec(ctx, st, record)
	if err != nil {
		return 0, err
	}

	identity, ok := r.model.Identity()
	if !ok {
		return result.RowsAffected()
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get last insert id")
	}
	if err := setIdentity(reflect.ValueOf(record).Elem(), identity, id); err != nil {
		return 0, err
	}
	return id, nil
}

// BulkInsert 按 batchSize 分批插入，返回影响的行数
func (r *Repository[T]) BulkInsert(ctx context.Context, records []*T) (int64, error) {
	var total int64
	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		st, err := r.compile(ctx, &statement.Request{Command: model.CommandBulkInsert, BatchSize: len(batch)})
		if err != nil {
			return total, err
		}
		args, err := bindRows(r.model, st, batch)
		if err != nil {
			return total, err
		}
		n, err := r.execArgs(ctx, st, args)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Update 按限定字段更新，qualifiers 为空时使用主键
func (r *Repository[T]) Update(ctx context.Context, record *T, qualifiers ...string) (int64, error) {
	return r.execRecord(ctx, record, &statement.Request{Command: model.CommandUpdate, Qualifiers: qualifiers})
}

// Delete 按限定字段删除，值取自 record
func (r *Repository[T]) Delete(ctx context.Context, record *T, qualifiers ...string) (int64, error) {
	return r.execRecord(ctx, record, &statement.Request{Command: model.CommandDelete, Qualifiers: qualifiers})
}

func (r *Repository[T]) DeleteAll(ctx context.Context) (int64, error) {
	st, err := r.compile(ctx, &statement.Request{Command: model.CommandDeleteAll})
	if err != nil {
		return 0, err
	}
	return r.execArgs(ctx, st, nil)
}

func (r *Repository[T]) Merge(ctx context.Context, record *T, opts MergeOptions) (int64, error) {
	return r.execRecord(ctx, record, mergeRequest(model.CommandMerge, opts))
}

func (r *Repository[T]) InlineMerge(ctx context.Context, record *T, opts MergeOptions) (int64, error) {
	return r.execRecord(ctx, record, mergeRequest(model.CommandInlineMerge, opts))
}

func mergeRequest(cmd model.Command, opts MergeOptions) *statement.Request {
	return &statement.Request{
		Command:        cmd,
		Fields:         opts.Fields,
		Qualifiers:     opts.Qualifiers,
		OverrideIgnore: opts.OverrideIgnore,
	}
}

// Query 以 where 中限定字段的值作为条件查询
func (r *Repository[T]) Query(ctx context.Context, where *T, opts QueryOptions) ([]*T, error) {
	if where == nil {
		return nil, ErrNilRecord
	}
	return r.query(ctx, where, &statement.Request{
		Command:    model.CommandQuery,
		Fields:     opts.Fields,
		Qualifiers: opts.Qualifiers,
		OrderBy:    opts.OrderBy,
		Top:        opts.Top,
	})
}

func (r *Repository[T]) QueryAll(ctx context.Context, opts QueryOptions) ([]*T, error) {
	return r.query(ctx, nil, &statement.Request{
		Command: model.CommandQueryAll,
		Fields:  opts.Fields,
		OrderBy: opts.OrderBy,
	})
}

// BatchQuery 分页查询，page 从 0 开始；opts.Qualifiers 非空时条件值取自 where
func (r *Repository[T]) BatchQuery(ctx context.Context, page, rowsPerBatch int, where *T, opts QueryOptions) ([]*T, error) {
	return r.query(ctx, where, &statement.Request{
		Command:      model.CommandBatchQuery,
		Fields:       opts.Fields,
		Qualifiers:   opts.Qualifiers,
		OrderBy:      opts.OrderBy,
		Page:         page,
		RowsPerBatch: rowsPerBatch,
	})
}

// Count 统计行数，qualifiers 非空时条件值取自 where
func (r *Repository[T]) Count(ctx context.Context, where *T, qualifiers ...string) (int64, error) {
	var count sql.NullInt64
	if err := r.scalar(ctx, where, &statement.Request{Command: model.CommandCount, Qualifiers: qualifiers}, &count); err != nil {
		return 0, err
	}
	return count.Int64, nil
}

// Aggregate 计算 average/max/min/sum，空表返回 0
func (r *Repository[T]) Aggregate(ctx context.Context, cmd model.Command, field string, where *T, qualifiers ...string) (float64, error) {
	if !cmd.IsAggregate() || cmd == model.CommandCount {
		return 0, errors.Wrapf(model.ErrUnknownCommand, "%s is not a value aggregate", cmd)
	}
	var value sql.NullFloat64
	if err := r.scalar(ctx, where, &statement.Request{Command: cmd, Field: field, Qualifiers: qualifiers}, &value); err != nil {
		return 0, err
	}
	return value.Float64, nil
}

func (r *Repository[T]) compile(ctx context.Context, req *statement.Request) (*statement.Statement, error) {
	return r.compiler.CompileContext(ctx, r.model, req)
}

func (r *Repository[T]) execRecord(ctx context.Context, record *T, req *statement.Request) (int64, error) {
	if record == nil {
		return 0, ErrNilRecord
	}
	st, err := r.compile(ctx, req)
	if err != nil {
		return 0, err
	}
	result, err := r.exec(ctx, st, record)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository[T]) exec(ctx context.Context, st *statement.Statement, record *T) (sql.Result, error) {
	args, err := bindRecord(r.model, st, record)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "exec", "command", string(st.Command), "sql", st.Text)
	result, err := r.db.ExecContext(ctx, st.Text, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to exec %s", st.Command)
	}
	return result, nil
}

func (r *Repository[T]) execArgs(ctx context.Context, st *statement.Statement, args []any) (int64, error) {
	r.logger.DebugContext(ctx, "exec", "command", string(st.Command), "sql", st.Text)
	result, err := r.db.ExecContext(ctx, st.Text, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to exec %s", st.Command)
	}
	return result.RowsAffected()
}

func (r *Repository[T]) query(ctx context.Context, where *T, req *statement.Request) ([]*T, error) {
	st, err := r.compile(ctx, req)
	if err != nil {
		return nil, err
	}
	args, err := bindRecord(r.model, st, where)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "query", "command", string(st.Command), "sql", st.Text)
	rows, err := r.db.QueryContext(ctx, st.Text, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s", st.Command)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		record := new(T)
		if err := scanRow(r.model, rows, reflect.ValueOf(record).Elem()); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rows")
	}
	return out, nil
}

func (r *Repository[T]) scalar(ctx context.Context, where *T, req *statement.Request, dest any) error {
	st, err := r.compile(ctx, req)
	if err != nil {
		return err
	}
	args, err := bindRecord(r.model, st, where)
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "query", "command", string(st.Command), "sql", st.Text)
	if err := r.db.QueryRowContext(ctx, st.Text, args...).Scan(dest); err != nil {
		return errors.Wrapf(err, "failed to query %s", st.Command)
	}
	return nil
}
