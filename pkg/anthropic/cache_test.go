package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("shared system prompt")
	require.Len(t, blocks, 1)
	require.Equal(t, "shared system prompt", blocks[0].Text)
	require.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestPrimerRequest(t *testing.T) {
	mc := &mockClient{resp: &MessageResponse{ID: "primer"}}
	resp, err := PrimerRequest(context.Background(), mc, MessageRequest{Model: "claude-haiku-4-5-20251001"})
	require.NoError(t, err)
	require.Equal(t, "primer", resp.ID)
}

func TestPrimerRequest_Error(t *testing.T) {
	mc := &mockClient{err: errors.New("boom")}
	_, err := PrimerRequest(context.Background(), mc, MessageRequest{})
	require.Error(t, err)
}
