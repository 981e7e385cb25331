package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockClient struct {
	resp *MessageResponse
	err  error
	got  MessageRequest
}

func (m *mockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := &mockClient{resp: &MessageResponse{
		ID:      "msg_1",
		Content: []ContentBlock{{Type: "text", Text: `{"ok":true}`}},
	}}

	temp := 0.2
	resp, err := mc.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   256,
		Temperature: &temp,
		System:      []SystemBlock{{Text: "system"}},
		Messages:    []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "msg_1", resp.ID)
	require.Equal(t, 0.2, *mc.got.Temperature)
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "there"},
		{Role: "weird", Content: "default"},
	})
	require.Len(t, out, 3)
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	out := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, out, 2)
	require.Nil(t, out[0].CacheControl)
	require.NotNil(t, out[1].CacheControl)
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	require.InDelta(t, 4.80, cost, 0.001)

	require.Zero(t, u.EstimateCost("unknown-model"))
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	c := NewClient("sk-test")
	require.NotNil(t, c)
}
