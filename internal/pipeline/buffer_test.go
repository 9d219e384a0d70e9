package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(seq uint64) *FrameData {
	return &FrameData{Data: []byte(fmt.Sprintf("frame-%d", seq)), Seq: seq, Timestamp: time.Now()}
}

func TestBufferDropsNewestWhenFull(t *testing.T) {
	b := NewFrameBuffer(10)

	for seq := uint64(1); seq <= 10; seq++ {
		assert.True(t, b.Push(frame(seq)))
	}
	assert.False(t, b.Push(frame(11)), "11th frame must be dropped")
	assert.Equal(t, 10, b.Len())
	assert.Equal(t, uint64(1), b.Dropped())

	// Oldest frame survives; the incoming one was sacrificed.
	got, err := b.Poll(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Seq)
}

func TestBufferPollFIFO(t *testing.T) {
	b := NewFrameBuffer(10)
	b.Push(frame(1))
	b.Push(frame(2))

	first, err := b.Poll(time.Millisecond)
	require.NoError(t, err)
	second, err := b.Poll(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestBufferPollTimeout(t *testing.T) {
	b := NewFrameBuffer(10)

	start := time.Now()
	_, err := b.Poll(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBufferPollWakesOnPush(t *testing.T) {
	b := NewFrameBuffer(10)

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Push(frame(7))
	}()

	got, err := b.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Seq)
}

func TestBufferClear(t *testing.T) {
	b := NewFrameBuffer(10)
	b.Push(frame(1))
	b.Push(frame(2))
	b.Clear()
	assert.Equal(t, 0, b.Len())
}
