package console

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/webinspector/internal/protocol/value"
)

func logMsg(text string) Message {
	return Message{Source: SourceJS, Kind: KindLog, Level: LevelLog, Text: text, Line: 1, URL: "page.html"}
}

func TestBuffer_CapacityAndExpired(t *testing.T) {
	const capacity, k = 10, 7
	b := NewBuffer(capacity)
	for i := 0; i < capacity+k; i++ {
		b.Add(logMsg(fmt.Sprintf("m%d", i)))
	}

	assert.Equal(t, capacity, b.Len())
	assert.Equal(t, k, b.Expired())
	msgs := b.Messages()
	assert.Equal(t, "m7", msgs[0].Text)
	assert.Equal(t, "m16", msgs[len(msgs)-1].Text)
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Capacity())
}

func TestBuffer_CoalescesRepeats(t *testing.T) {
	b := NewBuffer(5)
	first, coalesced := b.Add(logMsg("same"))
	require.False(t, coalesced)
	second, coalesced := b.Add(logMsg("same"))
	require.True(t, coalesced)

	assert.Same(t, first, second)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, first.RepeatCount)

	b.Add(logMsg("other"))
	b.Add(logMsg("same"))
	assert.Equal(t, 3, b.Len(), "only consecutive messages coalesce")
}

func TestBuffer_GroupLevels(t *testing.T) {
	b := NewBuffer(10)
	b.Add(Message{Kind: KindStartGroup, Text: "g"})
	inner, _ := b.Add(logMsg("inside"))
	b.Add(Message{Kind: KindEndGroup})
	outer, _ := b.Add(logMsg("outside"))

	assert.Equal(t, 1, inner.GroupLevel)
	assert.Equal(t, 0, outer.GroupLevel)
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(1)
	b.Add(logMsg("a"))
	b.Add(logMsg("b"))
	require.Equal(t, 1, b.Expired())

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Expired())
}

func TestMessage_ToValue(t *testing.T) {
	m := logMsg("hi")
	m.RepeatCount = 3
	got := value.Serialize(m.ToValue())
	want := `{"source":"javascript","type":"log","level":"log","line":1,"url":"page.html","groupLevel":0,"repeatCount":3,"message":"hi"}`
	assert.Equal(t, want, got)
}

func TestTimers_StartStop(t *testing.T) {
	now := time.Unix(100, 0)
	timers := NewTimers(func() time.Time { return now })

	timers.Start("load")
	now = now.Add(50 * time.Millisecond)
	timers.Start("load")
	now = now.Add(25 * time.Millisecond)

	elapsed, err := timers.Stop("load")
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, elapsed, "first start wins")
	assert.Zero(t, timers.Len())
}

func TestTimers_UnknownLabel(t *testing.T) {
	timers := NewTimers(nil)
	_, err := timers.Stop("never")
	assert.ErrorIs(t, err, ErrUnknownTimer)
	assert.Contains(t, err.Error(), "never")
}

func TestCounters_Count(t *testing.T) {
	c := NewCounters()
	n, text := c.Count("clicks", "a.js", 3)
	assert.Equal(t, 1, n)
	assert.Equal(t, "clicks: 1", text)

	n, text = c.Count("clicks", "a.js", 3)
	assert.Equal(t, 2, n)
	assert.Equal(t, "clicks: 2", text)

	n, _ = c.Count("clicks", "a.js", 4)
	assert.Equal(t, 1, n, "a different call site counts separately")

	c.Clear()
	assert.Zero(t, c.Len())
}
