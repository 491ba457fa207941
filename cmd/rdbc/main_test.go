package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hatlonely/repodb/rdb/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSchema = `
records:
  - name: Widget
    fields:
      - name: Field1
        primary: true
      - name: Field2
      - name: Field3
        ignore: [update]
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun(t *testing.T) {
	schema := writeFile(t, t.TempDir(), "schema.yaml", widgetSchema)

	for _, tt := range []struct {
		name string
		args []string
		want string
	}{
		{
			name: "merge",
			args: []string{"-command", "merge", "-qualifiers", "Field1"},
			want: "MERGE [Widget] AS T USING ( SELECT @Field1 AS [Field1], @Field2 AS [Field2], @Field3 AS [Field3] ) AS S ON ( S.[Field1] = T.[Field1] ) WHEN NOT MATCHED THEN INSERT ( [Field1], [Field2], [Field3] ) VALUES ( S.[Field1], S.[Field2], S.[Field3] ) WHEN MATCHED THEN UPDATE SET [Field2] = S.[Field2] ;\n" +
				"parameters: @Field1, @Field2, @Field3\n",
		},
		{
			name: "update",
			args: []string{"-command", "update"},
			want: "UPDATE [Widget] SET [Field2] = @Field2 WHERE ( [Field1] = @Field1 ) ;\nparameters: @Field2, @Field1\n",
		},
		{
			name: "deleteAll",
			args: []string{"-command", "deleteAll"},
			want: "DELETE FROM [Widget] ;\n",
		},
		{
			name: "query",
			args: []string{"-command", "query", "-fields", "Field2", "-top", "3", "-order", "Field2 desc"},
			want: "SELECT TOP (3) [Field2] FROM [Widget] WHERE ( [Field1] = @Field1 ) ORDER BY [Field2] DESC ;\nparameters: @Field1\n",
		},
		{
			name: "count",
			args: []string{"-command", "count"},
			want: "SELECT COUNT_BIG (*) AS [CountValue] FROM [Widget] ;\n",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"-schema", schema, "-record", "Widget"}, tt.args...)
			require.NoError(t, run(args, &stdout, &stderr, nil))
			assert.Equal(t, tt.want, stdout.String())
		})
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", widgetSchema)

	var stdout, stderr bytes.Buffer
	assert.Error(t, run([]string{"-schema", schema}, &stdout, &stderr, nil))
	assert.Error(t, run([]string{"-schema", schema, "-record", "Widget", "-command", "upsert"}, &stdout, &stderr, nil))
	assert.Error(t, run([]string{"-schema", filepath.Join(dir, "missing.yaml"), "-record", "Widget", "-command", "insert"}, &stdout, &stderr, nil))
	assert.Error(t, run([]string{"-schema", schema, "-record", "Gadget", "-command", "insert"}, &stdout, &stderr, nil))

	err := run([]string{"-schema", schema, "-record", "Widget", "-command", "update", "-qualifiers", "Missing"}, &stdout, &stderr, nil)
	assert.True(t, statement.IsUnresolvableQualifier(err))
	assert.Empty(t, stdout.String())

	stdout.Reset()
	require.NoError(t, run([]string{"-version"}, &stdout, &stderr, nil))
	assert.Equal(t, "rdbc dev\n", stdout.String())
}

func TestRunConfig(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", `
records:
  - name: Gadget
    table: dbo.Gadget
    fields:
      - name: GadgetId
      - name: Name
`)
	config := writeFile(t, dir, "rdbc.yaml", `
compiler:
  keyStrategies: [convention]
  defaultBatchSize: 2
  textCache:
    size: 1048576
logger:
  level: warn
`)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"-schema", schema, "-record", "Gadget", "-command", "bulkInsert", "-config", config}, &stdout, &stderr, nil))
	assert.Equal(t, "INSERT INTO [dbo].[Gadget] ( [GadgetId], [Name] ) VALUES ( @GadgetId, @Name ), ( @GadgetId_1, @Name_1 ) ;\n"+
		"parameters: @GadgetId, @Name, @GadgetId_1, @Name_1\n", stdout.String())

	bad := writeFile(t, dir, "bad.yaml", "compiler:\n  keyStrategies: [unknown]\n")
	assert.Error(t, run([]string{"-schema", schema, "-record", "Gadget", "-command", "insert", "-config", bad}, &stdout, &stderr, nil))
}

func TestRunWatch(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.yaml", widgetSchema)

	stdout := &syncBuffer{}
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- run([]string{"-schema", schema, "-record", "Widget", "-command", "deleteAll", "-watch"}, stdout, &bytes.Buffer{}, stop)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "DELETE FROM [Widget] ;")
	}, 2*time.Second, 10*time.Millisecond)
	// Watch 在首次输出之后才启动
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "schema.yaml", strings.Replace(widgetSchema, "name: Widget", "name: Widget\n    table: dbo.Widget", 1))
	assert.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "DELETE FROM [dbo].[Widget] ;")
	}, 3*time.Second, 10*time.Millisecond)

	close(stop)
	assert.NoError(t, <-done)
}
