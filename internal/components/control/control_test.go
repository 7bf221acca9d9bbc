package control

import (
	"net/url"
	"testing"

	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strs(v any) string {
	s, _ := datatypes.ParseAsString(v)
	return s
}

func TestSwitch(t *testing.T) {
	h := testutil.NewHarness(t, NewSwitch(), SwitchDescriptor, map[string]string{
		"switch_rules": "1=object_2, 3 = object",
	})

	h.MustFire(map[string]any{"object": "a", "switch": "1"})
	h.MustFire(map[string]any{"object": "b", "switch": datatypes.NewStrings("3")})
	h.MustFire(map[string]any{"object": "c", "switch": "7"})

	assert.Equal(t, []any{"a"}, h.Outputs("object_2"))
	assert.Equal(t, []any{"b"}, h.Outputs("object"))
	assert.Equal(t, []any{"c"}, h.Outputs("no_match"))
}

func TestSwitch_BadRules(t *testing.T) {
	for _, rules := range []string{"", "1", "1=2=3", "1=object_9"} {
		_, err := testutil.TryNewHarness(t, NewSwitch(), SwitchDescriptor, map[string]string{"switch_rules": rules})
		assert.Error(t, err, rules)
	}
}

type point struct {
	X, Y int
	Tags []string
}

type copyable struct{ n int }

func (c *copyable) Copy() any { return &copyable{n: c.n + 1} }

func TestForkX2_Modes(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		input any
		check func(t *testing.T, orig, replica any)
	}{
		{
			name:  "reference",
			props: map[string]string{"replication_mode": "0"},
			input: &point{X: 1},
			check: func(t *testing.T, orig, replica any) { assert.Same(t, orig, replica) },
		},
		{
			name:  "shallow",
			props: map[string]string{"replication_mode": "1"},
			input: &point{X: 1, Tags: []string{"a"}},
			check: func(t *testing.T, orig, replica any) {
				o, r := orig.(*point), replica.(*point)
				assert.NotSame(t, o, r)
				assert.Equal(t, o, r)
				r.Tags[0] = "changed"
				assert.Equal(t, "changed", o.Tags[0], "shallow copies share nested slices")
			},
		},
		{
			name:  "deep",
			props: map[string]string{"replication_mode": "2"},
			input: &point{X: 1, Tags: []string{"a"}},
			check: func(t *testing.T, orig, replica any) {
				o, r := orig.(*point), replica.(*point)
				assert.Equal(t, o, r)
				r.Tags[0] = "changed"
				assert.Equal(t, "a", o.Tags[0])
			},
		},
		{
			name:  "copier",
			props: map[string]string{"replication_mode": "3"},
			input: &copyable{n: 1},
			check: func(t *testing.T, _, replica any) { assert.Equal(t, 2, replica.(*copyable).n) },
		},
		{
			name:  "custom wire",
			props: map[string]string{"replication_mode": "4", "replication_method": "wire"},
			input: datatypes.NewStrings("x", "y"),
			check: func(t *testing.T, orig, replica any) {
				assert.NotSame(t, orig, replica)
				assert.Equal(t, []string{"x", "y"}, replica.(*datatypes.Strings).Value)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness(t, NewForkX2(), ForkDescriptor, tt.props)
			h.MustFire(map[string]any{"object": tt.input})
			require.Len(t, h.Outputs("object"), 1)
			require.Len(t, h.Outputs("object_2"), 1)
			assert.Same(t, tt.input, h.Last("object"))
			tt.check(t, tt.input, h.Last("object_2"))
		})
	}
}

func TestForkX2_Errors(t *testing.T) {
	_, err := testutil.TryNewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "9"})
	assert.Error(t, err)
	_, err = testutil.TryNewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "4"})
	assert.ErrorIs(t, err, component.ErrMissingProperty)
	_, err = testutil.TryNewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "4", "replication_method": "nope"})
	assert.Error(t, err)

	h := testutil.NewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "3"})
	assert.Error(t, h.Fire(map[string]any{"object": "not a copier"}))
}

func TestForkX2_CustomReplicator(t *testing.T) {
	RegisterReplicator("upper", func(v any) (any, error) { return v.(string) + "!", nil })
	RegisterReplicator("wrong", func(v any) (any, error) { return 42, nil })

	h := testutil.NewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "4", "replication_method": "upper"})
	h.MustFire(map[string]any{"object": "hi"})
	assert.Equal(t, "hi!", h.Last("object_2"))

	h = testutil.NewHarness(t, NewForkX2(), ForkDescriptor, map[string]string{"replication_mode": "4", "replication_method": "wrong"})
	assert.Error(t, h.Fire(map[string]any{"object": "hi"}))
}

func TestForkX2_ClonesDelimiters(t *testing.T) {
	h := testutil.NewHarness(t, NewForkX2(), ForkDescriptor, nil)
	si := component.NewStreamInitiator(3)
	h.MustFire(map[string]any{"object": si})

	assert.Same(t, si, h.Last("object"))
	clone, ok := h.Last("object_2").(component.Delimiter)
	require.True(t, ok)
	assert.NotSame(t, si, clone)
	assert.Equal(t, 3, clone.StreamID())
}

func TestStreamCounter(t *testing.T) {
	h := testutil.NewHarness(t, NewStreamCounter(), StreamCounterDescriptor, nil)

	h.MustFire(map[string]any{"object": "outside"})
	assert.Empty(t, h.Outputs("count"))

	h.MustFire(map[string]any{"object": component.NewStreamInitiator(0)})
	h.MustFire(map[string]any{"object": "a"})
	h.MustFire(map[string]any{"object": "b"})
	h.MustFire(map[string]any{"object": component.NewStreamTerminator(0)})

	counts := h.Outputs("count")
	require.Len(t, counts, 3, "initiator, count and terminator")
	assert.Equal(t, "2", strs(counts[1]))
	assert.True(t, component.IsTerminator(counts[2]))

	objects := h.Outputs("object")
	assert.Equal(t, "outside", objects[0])
	assert.True(t, component.IsInitiator(objects[1]))
	assert.Equal(t, "b", objects[3])
}

func TestStreamCounter_ForwardsForeignStreams(t *testing.T) {
	h := testutil.NewHarness(t, NewStreamCounter(), StreamCounterDescriptor, nil)

	h.MustFire(map[string]any{"object": component.NewStreamInitiator(5)})
	h.MustFire(map[string]any{"object": "a"})
	h.MustFire(map[string]any{"object": component.NewStreamTerminator(5)})

	for _, v := range h.Outputs("count") {
		assert.True(t, component.IsDelimiter(v), "no count for a foreign stream")
	}
}

func TestInputCounter(t *testing.T) {
	h := testutil.NewHarness(t, NewInputCounter(), InputCounterDescriptor, nil,
		testutil.WithOutputs("object", "current_count", "total_count"))

	h.MustFire(map[string]any{"object": component.NewStreamInitiator(0)})
	h.MustFire(map[string]any{"object": "a"})
	h.MustFire(map[string]any{"object": "b"})
	h.MustFire(map[string]any{"object": "c"})
	h.MustFire(map[string]any{"object": component.NewStreamTerminator(0)})

	var current []string
	for _, v := range h.Outputs("current_count") {
		if !component.IsDelimiter(v) {
			current = append(current, strs(v))
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, current)

	totals := h.Outputs("total_count")
	require.Len(t, totals, 3)
	assert.Equal(t, "3", strs(totals[1]))
}

func TestTriggerMessage(t *testing.T) {
	h := testutil.NewHarness(t, NewTriggerMessage(), TriggerMessageDescriptor, nil)

	h.MustFire(map[string]any{"Trigger": "t1"})
	h.MustFire(map[string]any{"Trigger": "t2"})
	assert.Empty(t, h.Outputs("object"), "no message yet")

	h.MustFire(map[string]any{"object": "msg"})
	assert.Equal(t, []any{"msg", "msg"}, h.Outputs("object"))

	h.MustFire(map[string]any{"object": "msg2"})
	h.MustFire(map[string]any{"Trigger": "t3"})
	assert.Equal(t, []any{"msg", "msg", "msg2"}, h.Outputs("object"))
}

func TestTriggerMessage_Streams(t *testing.T) {
	h := testutil.NewHarness(t, NewTriggerMessage(), TriggerMessageDescriptor, nil)

	require.NoError(t, h.Fire(map[string]any{"Trigger": component.NewStreamInitiator(1)}))
	assert.Error(t, h.Fire(map[string]any{"Trigger": component.NewStreamInitiator(2)}), "nested streams")
	require.NoError(t, h.Fire(map[string]any{"Trigger": component.NewStreamTerminator(1)}))
	assert.Error(t, h.Fire(map[string]any{"Trigger": component.NewStreamTerminator(1)}), "unbalanced terminator")

	require.NoError(t, h.Fire(map[string]any{"object": component.NewStreamInitiator(9)}))
	assert.Len(t, h.Outputs("object"), 2, "delimiters on object are dropped")
}

func TestTriggerMessageCount(t *testing.T) {
	h := testutil.NewHarness(t, NewTriggerMessageCount(), TriggerMessageCountDescriptor, nil)

	h.MustFire(map[string]any{"object": component.NewStreamInitiator(0)})
	h.MustFire(map[string]any{"object": "a"})
	h.MustFire(map[string]any{"count": component.NewStreamInitiator(4)})
	h.MustFire(map[string]any{"count": datatypes.NewStrings("2")})
	h.MustFire(map[string]any{"object": component.NewStreamTerminator(0)})
	h.MustFire(map[string]any{"object": "b"})
	assert.Len(t, h.Outputs("object"), 4, "b waits for its count")
	h.MustFire(map[string]any{"count": "1"})

	out := h.Outputs("object")
	require.Len(t, out, 5)
	assert.True(t, component.IsInitiator(out[0]))
	assert.Equal(t, []any{"a", "a"}, out[1:3])
	assert.True(t, component.IsTerminator(out[3]), "terminator passes without a count")
	assert.Equal(t, "b", out[4])
}

func TestDataTypeDecoder(t *testing.T) {
	h := testutil.NewHarness(t, NewDataTypeDecoder(), DataTypeDecoderDescriptor, nil)
	u, _ := url.Parse("http://example.com")

	h.MustFire(map[string]any{"data": component.NewStreamInitiator(1)})
	assert.Empty(t, h.PushOrder(), "initiator held until the port is known")

	h.MustFire(map[string]any{"data": u})
	h.MustFire(map[string]any{"data": component.NewStreamTerminator(1)})
	h.MustFire(map[string]any{"data": "hello"})
	h.MustFire(map[string]any{"data": []byte{1, 2}})

	loc := h.Outputs("location")
	require.Len(t, loc, 3)
	assert.True(t, component.IsInitiator(loc[0]))
	assert.Same(t, u, loc[1])
	assert.True(t, component.IsTerminator(loc[2]))
	assert.Equal(t, []any{"hello"}, h.Outputs("text"))
	assert.Equal(t, []any{[]byte{1, 2}}, h.Outputs("raw_data"))

	assert.ErrorIs(t, h.Fire(map[string]any{"data": 42}), datatypes.ErrUnsupportedType)
}

func TestDataTypeDecoder_EmptyStream(t *testing.T) {
	h := testutil.NewHarness(t, NewDataTypeDecoder(), DataTypeDecoderDescriptor, nil)
	h.MustFire(map[string]any{"data": component.NewStreamTerminator(1)})
	assert.Empty(t, h.PushOrder(), "terminator without initiator is ignored")

	h.MustFire(map[string]any{"data": component.NewStreamInitiator(1)})
	h.MustFire(map[string]any{"data": component.NewStreamTerminator(1)})
	assert.Equal(t, []string{"location", "location"}, h.PushOrder())
}
