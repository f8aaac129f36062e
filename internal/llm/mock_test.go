package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProviderEcho(t *testing.T) {
	p := NewEchoProvider()
	resp, err := p.Generate(context.Background(), GenerateRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 1, p.GetCallCount())
}

func TestMockProviderFixturesRotate(t *testing.T) {
	p := NewFixturesProvider([]string{"one", "two"})
	ctx := context.Background()

	for _, want := range []string{"one", "two", "one"} {
		resp, err := p.Generate(ctx, GenerateRequest{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Text)
	}
	assert.Equal(t, []string{"p", "p", "p"}, p.GetPrompts())
}

func TestMockProviderError(t *testing.T) {
	p := NewErrorProvider()
	_, err := p.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	assert.Error(t, err)
}

func TestMockProviderErrorAfter(t *testing.T) {
	p := NewMockProvider(MockConfig{
		Mode:       MockModeFixed,
		Responses:  []string{"ok"},
		ErrorAfter: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Generate(ctx, GenerateRequest{Prompt: "p"})
		require.NoError(t, err)
	}
	_, err := p.Generate(ctx, GenerateRequest{Prompt: "p"})
	assert.Error(t, err)
}
