package log

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewSLogWithOptions(t *testing.T) {
	t.Run("json 输出到文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "app.log")
		logger, err := NewSLogWithOptions(&Options{
			Level:  "warn",
			Format: "json",
			Output: WriterOptions{Target: "file", Path: path},
			Fields: map[string]any{"service": "repodb"},
		})
		require.NoError(t, err)

		logger.Info("dropped")
		logger.WithGroup("compiler").With("table", "Widget").Warn("compile failed", "command", "merge")
		logger.ErrorContext(context.Background(), "boom")

		lines := readLines(t, path)
		require.Len(t, lines, 2)

		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "compile failed", record["msg"])
		assert.Equal(t, "repodb", record["service"])
		assert.Equal(t, map[string]any{"table": "Widget", "command": "merge"}, record["compiler"])
		assert.Contains(t, lines[1], `"msg":"boom"`)
	})

	t.Run("text 格式和时间格式", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		logger, err := NewSLogWithOptions(&Options{
			Level:      "debug",
			Output:     WriterOptions{Target: "file", Path: path},
			TimeFormat: "2006-01-02",
		})
		require.NoError(t, err)

		logger.Debug("hello", "key", "value")
		lines := readLines(t, path)
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "level=DEBUG")
		assert.Contains(t, lines[0], "msg=hello key=value")
		assert.Regexp(t, `^time=\d{4}-\d{2}-\d{2} `, lines[0])
	})

	t.Run("tee 同时写多个文件", func(t *testing.T) {
		dir := t.TempDir()
		primary := filepath.Join(dir, "primary.log")
		tee := filepath.Join(dir, "tee.log")
		logger, err := NewSLogWithOptions(&Options{
			Output: WriterOptions{Target: "file", Path: primary, Tee: []string{tee}},
		})
		require.NoError(t, err)

		logger.Info("both")
		assert.Contains(t, readLines(t, primary)[0], "msg=both")
		assert.Contains(t, readLines(t, tee)[0], "msg=both")
	})

	t.Run("非法选项", func(t *testing.T) {
		_, err := NewSLogWithOptions(nil)
		assert.Error(t, err)
		_, err = NewSLogWithOptions(&Options{Level: "verbose"})
		assert.Error(t, err)
		_, err = NewSLogWithOptions(&Options{Format: "xml"})
		assert.Error(t, err)
		_, err = NewSLogWithOptions(&Options{Output: WriterOptions{Target: "file"}})
		assert.Error(t, err)
		_, err = NewSLogWithOptions(&Options{Output: WriterOptions{Target: "syslog"}})
		assert.Error(t, err)
	})
}

func TestNewLoggerWithOptions(t *testing.T) {
	logger, err := NewLoggerWithOptions(nil)
	require.NoError(t, err)
	assert.Same(t, Default(), logger)

	logger, err = NewLoggerWithOptions(&Options{Output: WriterOptions{Target: "stderr"}})
	require.NoError(t, err)
	assert.NotSame(t, Default(), logger)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.log")
	w, err := NewFileWriter(path)
	require.NoError(t, err)

	_, err = w.Write([]byte("a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("b\n"))
	assert.Error(t, err)

	w, err = NewFileWriter(path)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Write([]byte("c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, readLines(t, path))

	_, err = NewFileWriter("")
	assert.Error(t, err)
}
