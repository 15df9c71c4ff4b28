package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/deepresearch/pkg/models"
)

func TestSendRecvOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStream(8)

	require.NoError(t, s.Send(ctx, NewStart("q", models.ResearchOptions{Depth: 1, Breadth: 1})))
	require.NoError(t, s.Send(ctx, NewLearning("first")))
	require.NoError(t, s.Send(ctx, NewComplete(CompleteMetrics{ModelID: "m"})))
	s.Close()

	var types []Type
	for {
		ev, ok := s.Recv(ctx)
		if !ok {
			break
		}
		types = append(types, ev.Type)
	}
	assert.Equal(t, []Type{TypeStart, TypeLearning, TypeComplete}, types)
}

func TestSendBlocksOnFullBuffer(t *testing.T) {
	s := NewStream(1)
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, NewLearning("fills the buffer")))

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := s.Send(blockedCtx, NewLearning("backpressure"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Consumer drains one slot; the producer can proceed again.
	_, ok := s.Recv(ctx)
	require.True(t, ok)
	assert.NoError(t, s.Send(ctx, NewLearning("fits now")))
}

func TestSendWithCancelledContextNeverDelivers(t *testing.T) {
	s := NewStream(4) // room in the buffer; only the ctx stands in the way
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		err := s.Send(ctx, NewLearning("stray"))
		require.ErrorIs(t, err, context.Canceled)
	}

	s.Close()
	_, ok := s.Recv(context.Background())
	assert.False(t, ok, "no event may slip through after cancellation")
}

func TestSendAfterClose(t *testing.T) {
	s := NewStream(4)
	s.Close()
	s.Close() // idempotent
	err := s.Send(context.Background(), NewLearning("late"))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestRecvDrainsBufferedAfterClose(t *testing.T) {
	ctx := context.Background()
	s := NewStream(4)
	require.NoError(t, s.Send(ctx, NewLearning("a")))
	require.NoError(t, s.Send(ctx, NewLearning("b")))
	s.Close()

	ev, ok := s.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", ev.Content)
	ev, ok = s.Recv(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", ev.Content)
	_, ok = s.Recv(ctx)
	assert.False(t, ok)
}

func TestWriteNDJSON(t *testing.T) {
	ctx := context.Background()
	s := NewStream(8)
	require.NoError(t, s.Send(ctx, NewStart("who invented the transistor?", models.ResearchOptions{Depth: 1, Breadth: 1, ModelID: "test-model"})))
	require.NoError(t, s.Send(ctx, NewSources([]models.Source{{
		URL: "https://bell-labs.com/x", Title: "Bell Labs", Domain: "bell-labs.com", Relevance: 0.9,
	}})))
	require.NoError(t, s.Send(ctx, NewComplete(CompleteMetrics{TotalTimeSeconds: 1.5, ModelID: "test-model"})))
	s.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteNDJSON(ctx, &buf, nil, s))

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &obj), "each line is standalone JSON")
		lines = append(lines, obj)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "start", lines[0]["type"])
	assert.Equal(t, "sources", lines[1]["type"])
	assert.Equal(t, "complete", lines[2]["type"])

	// Fields of other event types must be omitted, not null.
	_, hasSources := lines[0]["sources"]
	assert.False(t, hasSources)
}

func TestEventJSONShape(t *testing.T) {
	raw, err := json.Marshal(NewError("aborted by caller", KindCancelled))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","content":"aborted by caller","kind":"cancelled"}`, string(raw))

	p := models.Progress{
		Percent: 50, Status: "searching", CurrentDepth: 1, TotalDepth: 2,
		CurrentBreadth: 1, TotalBreadth: 2, CompletedQueries: 1, TotalQueries: 2,
		CurrentQuery: "qec basics",
	}
	raw, err = json.Marshal(NewProgress(p))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"currentQuery":"qec basics"`))
	assert.True(t, strings.Contains(string(raw), `"progress":50`))
}
