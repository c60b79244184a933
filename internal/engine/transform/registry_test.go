package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringTransforms(t *testing.T) {
	r := New(nil)

	assert.Equal(t, "HELLO", r.Apply("upper", "hello"))
	assert.Equal(t, "hello", r.Apply("lower", "HELLO"))
	assert.Equal(t, "Hello", r.Apply("capitalize", "hello"))
	assert.Equal(t, "hi…", r.Apply("truncate", "hi there", 2))
	assert.Equal(t, "007", r.Apply("padStart", 7, 3, "0"))
	assert.Equal(t, "my-title", r.Apply("slug", "My Title!"))
	assert.Equal(t, "myTitleCase", r.Apply("camelCase", "my title_case"))
	assert.Equal(t, "my_title_case", r.Apply("snakeCase", "my titleCase"))
	assert.Equal(t, "my-title-case", r.Apply("kebabCase", "my titleCase"))
}

func TestUnknownTransformReturnsInputUnchanged(t *testing.T) {
	r := New(nil)
	require.Equal(t, "value", r.Apply("does-not-exist", "value"))
}

func TestApplyChain(t *testing.T) {
	r := New(nil)
	out := r.ApplyChain("  Hello World  ", "trim | upper")
	assert.Equal(t, "HELLO WORLD", out)
}

func TestApplyChainWithArgs(t *testing.T) {
	r := New(nil)
	out := r.ApplyChain("hello world", "truncate:5,...")
	assert.Equal(t, "hello...", out)
}

func TestArrayTransforms(t *testing.T) {
	r := New(nil)
	xs := []interface{}{"b", "a", "c"}

	assert.Equal(t, "a", r.Apply("first", []interface{}{"a", "b"}))
	assert.Equal(t, []interface{}{"a", "b", "c"}, r.Apply("sort", xs))
	assert.Equal(t, "b,a,c", r.Apply("join", xs))
}

func TestNumberTransforms(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 3.14, r.Apply("round", 3.14159, 2))
	assert.Equal(t, "3.14", r.Apply("toFixed", 3.14159, 2))
}

func TestUtilityTransforms(t *testing.T) {
	r := New(nil)
	assert.Equal(t, "fallback", r.Apply("default", nil, "fallback"))
	assert.Equal(t, "value", r.Apply("default", "value", "fallback"))
	assert.Equal(t, "number", r.Apply("typeof", 5))
	assert.Equal(t, 3, r.Apply("length", "abc"))
}
