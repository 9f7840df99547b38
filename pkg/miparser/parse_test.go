package miparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoresce/fluoresce/pkg/mierr"
)

func mustField(t *testing.T, v Value, name string) Value {
	t.Helper()
	f, ok := v.Field(name)
	require.True(t, ok, "missing field %q", name)
	return f
}

func TestParseEmptyBodyYieldsEmptyTuple(t *testing.T) {
	v, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, KindTuple, v.Kind)
	assert.Equal(t, 0, v.Tuple.Len())
}

func TestParseNestedListOfTuplesWithRepeatedKeys(t *testing.T) {
	v, err := Parse(`a="1",b=[c={d="2"},c={d="3"}]`)
	require.NoError(t, err)

	a := mustField(t, v, "a")
	s, err := a.AsString()
	require.NoError(t, err)
	assert.Equal(t, "1", s)

	b := mustField(t, v, "b")
	require.Equal(t, KindList, b.Kind)
	require.Len(t, b.List, 2)

	first, ok := b.Index(0)
	require.True(t, ok)
	d := mustField(t, first, "d")
	s, err = d.AsString()
	require.NoError(t, err)
	assert.Equal(t, "2", s)

	second, _ := b.Index(1)
	d2 := mustField(t, second, "d")
	s, err = d2.AsString()
	require.NoError(t, err)
	assert.Equal(t, "3", s)
}

func TestRemoveArrayKeys(t *testing.T) {
	out, err := removeArrayKeys(`[x={a="1"},y={a="2"}]`)
	require.NoError(t, err)
	assert.Equal(t, `[{a="1"},{a="2"}]`, out)
}

func TestRemoveArrayKeysPreservesTopLevelKey(t *testing.T) {
	out, err := removeArrayKeys(`a="1"`)
	require.NoError(t, err)
	assert.Equal(t, `a="1"`, out)
}

func TestRemoveArrayKeysIgnoresKeysInsideQuotedStrings(t *testing.T) {
	out, err := removeArrayKeys(`[x={a="key=value"}]`)
	require.NoError(t, err)
	assert.Equal(t, `[{a="key=value"}]`, out)
}

func TestParseStackListFramesStyleBody(t *testing.T) {
	v, err := Parse(`stack=[frame={level="0"}]`)
	require.NoError(t, err)

	stack := mustField(t, v, "stack")
	require.Equal(t, KindList, stack.Kind)
	require.Len(t, stack.List, 1)

	frame, _ := stack.Index(0)
	level := mustField(t, frame, "level")
	s, err := level.AsString()
	require.NoError(t, err)
	assert.Equal(t, "0", s)
}

func TestParseEscapedQuoteRoundTrips(t *testing.T) {
	v, err := Parse(`msg="a \"quoted\" , = { [ thing"`)
	require.NoError(t, err)
	msg := mustField(t, v, "msg")
	s, err := msg.AsString()
	require.NoError(t, err)
	assert.Equal(t, `a "quoted" , = { [ thing`, s)

	reparsed, err := Parse(PrintBody(v))
	require.NoError(t, err)
	msg2 := mustField(t, reparsed, "msg")
	s2, err := msg2.AsString()
	require.NoError(t, err)
	assert.Equal(t, s, s2)
}

func TestParseRoundTripsThroughPrintBody(t *testing.T) {
	bodies := []string{
		``,
		`a="1",b=[c={d="2"},c={d="3"}]`,
		`stack=[frame={level="0"},frame={level="1"}]`,
	}
	for _, b := range bodies {
		v, err := Parse(b)
		require.NoError(t, err)

		reprinted := PrintBody(v)
		v2, err := Parse(reprinted)
		require.NoError(t, err)
		assert.Equal(t, Print(v), Print(v2))
	}
}

func TestParseInvalidBodyIsParseError(t *testing.T) {
	_, err := Parse(`not=valid=={`)
	require.Error(t, err)
	assert.True(t, mierr.HasCode(err, mierr.ParseError))
}
