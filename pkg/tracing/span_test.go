package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := Start(context.Background(), "GET /api/v1/search", "abc")
	assert.Same(t, root, FromContext(ctx))

	childCtx, match := StartChild(ctx, "match")
	_, nested := StartChild(childCtx, "read")
	nested.End()
	match.SetAttr("candidates", 3)
	match.End()
	_, rank := StartChild(ctx, "rank")
	rank.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "match", children[0].Name)
	assert.Equal(t, "rank", children[1].Name)
	assert.Equal(t, "abc", children[0].TraceID)
	v, ok := children[0].Attr("candidates")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	require.Len(t, children[0].Children(), 1)

	var buf bytes.Buffer
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.Equal(t, 4, strings.Count(buf.String(), "msg=span"))
	assert.Contains(t, buf.String(), "depth=2")
}

func TestNoParentIsNoop(t *testing.T) {
	ctx := context.Background()
	got, span := StartChild(ctx, "orphan")
	assert.Nil(t, span)
	assert.Equal(t, ctx, got)
	span.SetAttr("k", 1)
	span.End()
	assert.Empty(t, span.Children())
	span.Log(ctx, slog.Default())
}

func TestLogSkippedAboveDebug(t *testing.T) {
	ctx, root := Start(context.Background(), "root", NewTraceID())
	root.End()
	var buf bytes.Buffer
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	assert.Zero(t, buf.Len())
	assert.Len(t, root.TraceID, 16)
}
