package telegram

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

type scriptedSource struct {
	batches  [][]Update
	offsets  []int64
	onEmpty  func()
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	s.offsets = append(s.offsets, offset)
	if len(s.batches) == 0 {
		if s.onEmpty != nil {
			s.onEmpty()
		}
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func TestPollerRun(t *testing.T) {
	t.Run("confirms only submitted updates", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		source := &scriptedSource{
			batches: [][]Update{
				{{UpdateID: 10}, {UpdateID: 11}},
				{{UpdateID: 12}},
			},
			onEmpty: cancel,
		}

		var seen []int64
		p := NewPoller(source, func(u Update) { seen = append(seen, u.UpdateID) },
			observability.NewLogger(observability.ErrorLevel, io.Discard))

		err := p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, []int64{10, 11, 12}, seen)
		// first poll starts unconfirmed, later polls acknowledge what was handed off
		require.GreaterOrEqual(t, len(source.offsets), 3)
		assert.Equal(t, int64(0), source.offsets[0])
		assert.Equal(t, int64(12), source.offsets[1])
		assert.Equal(t, int64(13), source.offsets[2])
	})

	t.Run("stops promptly when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		source := &scriptedSource{}
		p := NewPoller(source, func(Update) {}, observability.NewLogger(observability.ErrorLevel, io.Discard))

		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("poller did not stop")
		}
	})
}
