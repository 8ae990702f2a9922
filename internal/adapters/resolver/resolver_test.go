package resolver_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/knit/internal/adapters/resolver"
	"go.trai.ch/knit/internal/core/domain"
)

// files is an in-memory project that records every probe.
type files struct {
	content map[string]string
	probed  []string
}

func (f *files) ReadFile(name string) ([]byte, error) {
	c, ok := f.content[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(c), nil
}

func (f *files) IsFile(name string) bool {
	f.probed = append(f.probed, name)
	_, ok := f.content[name]
	return ok
}

func project() *files {
	return &files{content: map[string]string{
		"src/index.js":                      "",
		"src/util.ts":                       "",
		"src/styles/main.css":               "",
		"src/components/index.jsx":          "",
		"src/data.json":                     "",
		"node_modules/lodash/package.json":  `{"main": "lib/lodash.js"}`,
		"node_modules/lodash/lib/lodash.js": "",
		"node_modules/lodash/fp.js":         "",
		"node_modules/esm/package.json":     `{"main": "cjs.js", "module": "esm.js"}`,
		"node_modules/esm/esm.js":           "",
		"node_modules/esm/cjs.js":           "",
		"node_modules/@scope/pkg/index.js":  "",
		"node_modules/broken/package.json":  `{not json`,
		"node_modules/broken/index.js":      "",
		"src/node_modules/local/index.js":   "",
		"node_modules/escape/package.json":  `{"main": "../../secret.js"}`,
	}}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		from      string
		specifier string
		want      string
	}{
		{"relative with extension", "src/index.js", "./data.json", "src/data.json"},
		{"extension probing", "src/index.js", "./util", "src/util.ts"},
		{"parent directory", "src/components/index.jsx", "../util", "src/util.ts"},
		{"directory index", "src/index.js", "./components", "src/components/index.jsx"},
		{"root absolute", "src/components/index.jsx", "/src/styles/main.css", "src/styles/main.css"},
		{"package main", "src/index.js", "lodash", "node_modules/lodash/lib/lodash.js"},
		{"module wins over main", "src/index.js", "esm", "node_modules/esm/esm.js"},
		{"package subpath", "src/index.js", "lodash/fp", "node_modules/lodash/fp.js"},
		{"scoped package", "src/index.js", "@scope/pkg", "node_modules/@scope/pkg/index.js"},
		{"invalid manifest falls back to index", "src/index.js", "broken", "node_modules/broken/index.js"},
		{"nearest node_modules wins", "src/index.js", "local", "src/node_modules/local/index.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.New().Resolve(context.Background(), tt.from, tt.specifier, project())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Failures(t *testing.T) {
	tests := []struct {
		name      string
		from      string
		specifier string
	}{
		{"missing relative", "src/index.js", "./missing"},
		{"missing package", "src/index.js", "react"},
		{"escapes project", "src/index.js", "../../etc/passwd"},
		{"manifest main missing", "src/index.js", "escape"},
		{"url", "src/styles/main.css", "https://example.com/font.woff"},
		{"empty", "src/index.js", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.New().Resolve(context.Background(), tt.from, tt.specifier, project())
			require.ErrorIs(t, err, domain.ErrResolution)

			var diag *domain.Diagnostic
			require.ErrorAs(t, err, &diag)
			assert.Equal(t, tt.from, diag.FilePath)
			assert.Equal(t, tt.specifier, diag.Specifier)
		})
	}
}

func TestResolver_RecordsEveryProbe(t *testing.T) {
	fs := project()

	_, err := resolver.New(".js", ".ts").Resolve(context.Background(), "src/index.js", "./nothing", fs)
	require.Error(t, err)

	want := []string{"src/nothing", "src/nothing.js", "src/nothing.ts", "src/nothing/index.js", "src/nothing/index.ts"}
	assert.Equal(t, want, fs.probed)

	var diag *domain.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, []string{"tried: src/nothing, src/nothing.js, src/nothing.ts, src/nothing/index.js, src/nothing/index.ts"}, diag.Hints)
}

func TestResolver_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.New().Resolve(ctx, "src/index.js", "./util", project())
	require.ErrorIs(t, err, context.Canceled)
}
