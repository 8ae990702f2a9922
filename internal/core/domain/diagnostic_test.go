package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/zerr"
)

func TestDiagnostic_Classification(t *testing.T) {
	t.Parallel()

	res := domain.NewResolutionError("src/index.js", "./missing", []string{"src/missing.js"})
	require.ErrorIs(t, res, domain.ErrResolution)
	assert.NotErrorIs(t, res, domain.ErrTransform)
	assert.Equal(t, "./missing", res.Specifier)
	assert.Contains(t, res.Error(), "src/index.js")
	assert.Equal(t, []string{"tried: src/missing.js"}, res.Hints)

	cycle := domain.NewCyclicRequestError("a -> b -> a")
	require.ErrorIs(t, cycle, domain.ErrCyclicRequest)
	assert.Contains(t, cycle.Error(), "a -> b -> a")

	cause := errors.New("boom")
	crash := domain.NewWorkerCrashError("transform", 3, cause)
	require.ErrorIs(t, crash, domain.ErrWorkerCrash)
	require.ErrorIs(t, crash, cause)
}

func TestDiagnostic_CodeFrame(t *testing.T) {
	t.Parallel()

	src := []byte("line one\nline two\nline three")
	d := domain.NewTransformError("a.js", 2, 6, "unexpected token", src)

	require.ErrorIs(t, d, domain.ErrTransform)
	assert.Equal(t, "  1 | line one\n> 2 | line two\n    |      ^\n  3 | line three", d.CodeFrame)
	assert.Contains(t, d.Error(), "(a.js:2:6)")
}

func TestCodeFrame_OutOfRange(t *testing.T) {
	t.Parallel()

	assert.Empty(t, domain.CodeFrame([]byte("x"), 5, 1))
	assert.Empty(t, domain.CodeFrame(nil, 1, 1))
	assert.Empty(t, domain.CodeFrame([]byte("x"), 0, 1))
}

func TestCollectDiagnostics(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, domain.CollectDiagnostics(nil))
	})

	t.Run("flattens joined errors and dedupes", func(t *testing.T) {
		t.Parallel()

		a := domain.NewResolutionError("a.js", "./x", nil)
		b := domain.NewTransformError("b.js", 1, 1, "bad", []byte("?"))
		err := errors.Join(a, errors.Join(b, a))

		diags := domain.CollectDiagnostics(err)
		require.Len(t, diags, 2)
		assert.Same(t, a, diags[0])
		assert.Same(t, b, diags[1])
	})

	t.Run("wraps plain errors as build failures", func(t *testing.T) {
		t.Parallel()

		root := errors.New("disk full")
		diags := domain.CollectDiagnostics(zerr.Wrap(root, "write failed"))
		require.Len(t, diags, 1)
		require.ErrorIs(t, diags[0], domain.ErrBuildFailed)
		require.ErrorIs(t, diags[0], root)
	})
}
