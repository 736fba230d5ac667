package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsAccessors(t *testing.T) {
	f := Fields{
		"n":     json.Number("5"),
		"f":     float64(3),
		"half":  1.5,
		"s":     "x",
		"b":     true,
		"arr":   []any{1, 2},
		"inner": map[string]any{"k": "v"},
	}

	n, ok := f.Int64("n")
	require.True(t, ok)
	assert.Equal(t, int64(5), n)

	n, ok = f.Int64("f")
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = f.Int64("half")
	assert.False(t, ok)

	_, ok = f.Int64("missing")
	assert.False(t, ok)

	_, ok = Fields{"digits": "5"}.Int64("digits")
	assert.False(t, ok)

	_, ok = AsInt64(1e19)
	assert.False(t, ok)

	s, ok := f.String("s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	b, ok := f.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)

	assert.Len(t, f.Slice("arr"), 2)
	assert.Equal(t, "v", f.Map("inner")["k"])
	assert.Nil(t, f.Map("s"))
}

func TestFieldsProjectCopies(t *testing.T) {
	f := Fields{"a": []any{1}, "b": 2, "c": map[string]any{"x": 1}}

	p := f.Project("a", "missing")
	assert.Equal(t, Fields{"a": []any{1}}, p)

	p["a"].([]any)[0] = 99
	assert.Equal(t, 1, f["a"].([]any)[0])

	all := f.Project()
	assert.Len(t, all, 3)
	all["c"].(map[string]any)["x"] = 2
	assert.Equal(t, 1, f["c"].(map[string]any)["x"])
}

func TestSameValue(t *testing.T) {
	assert.True(t, SameValue(json.Number("1"), 1))
	assert.True(t, SameValue(int64(2), 2.0))
	assert.False(t, SameValue(1, "1"))
	assert.True(t, SameValue("ok", "ok"))
	assert.True(t, SameValue(IntID(3), json.Number("3")))
	assert.True(t, SameValue(json.Number("3"), IntID(3)))
	assert.True(t, SameValue([]any{"a"}, []any{"a"}))
	assert.False(t, SameValue(nil, 0))
}

func TestSameValueLargeIntegers(t *testing.T) {
	const big = int64(1) << 53

	assert.False(t, SameValue(big, big+1))
	assert.False(t, SameValue(IntID(big), IntID(big+1)))
	assert.False(t, SameValue(json.Number("9007199254740992"), json.Number("9007199254740993")))
	assert.True(t, SameValue(json.Number("9007199254740993"), IntID(big+1)))
	assert.True(t, SameValue(int64(math.MaxInt64), json.Number("9223372036854775807")))
	assert.True(t, SameValue(json.Number("2.5"), 2.5))
	assert.False(t, SameValue(json.Number("2.5"), 2))
}

func TestSubDocumentMapRoundTrip(t *testing.T) {
	sub := SubDocument{
		ID:       NewObjectID(),
		OwnerUID: 42,
		Content:  "hi",
		Fields:   Fields{"vote": 1},
	}

	back, ok := SubDocumentFromMap(sub.ToMap())
	require.True(t, ok)
	assert.True(t, sub.ID.Equal(back.ID))
	assert.Equal(t, int64(42), back.OwnerUID)
	assert.Equal(t, "hi", back.Content)
	assert.Equal(t, 1, back.Fields["vote"])

	_, ok = SubDocumentFromMap("nope")
	assert.False(t, ok)
}

func TestParseDocType(t *testing.T) {
	dt, ok := ParseDocType("30")
	assert.True(t, ok)
	assert.Equal(t, DocTypeContest, dt)

	dt, ok = ParseDocType("discussion_reply")
	assert.True(t, ok)
	assert.Equal(t, DocTypeDiscussionReply, dt)

	_, ok = ParseDocType("99")
	assert.False(t, ok)
}
