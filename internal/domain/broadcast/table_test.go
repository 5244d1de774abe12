package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

func TestSiteIdentity(t *testing.T) {
	tests := map[string]string{
		"https://chat.deepseek.com/a/chat": "deepseek",
		"https://claude.ai/new":            "claude",
		"https://www.bbc.co.uk/news":       "bbc",
		"http://localhost:3000":            "localhost",
		"http://127.0.0.1:8080/x":          "127.0.0.1",
		"not a url at all":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SiteIdentity(in), in)
	}
}

func TestResolveOrder(t *testing.T) {
	table := NewTable()

	assert.Equal(t, "claude", table.Resolve("claude", "https://elsewhere.example").Site(), "panel id wins")
	assert.Equal(t, "chatgpt", table.Resolve("work-gpt", "https://chatgpt.com/").Site(), "host glob")
	assert.Equal(t, "chatgpt", table.Resolve("x", "https://eu.chatgpt.com/c/1").Site(), "wildcard host glob")
	assert.Equal(t, "mistral", table.Resolve("x", "https://le-chat.mistral.ai").Site(), "site identity")
}

func TestResolveFallsBackToGeneric(t *testing.T) {
	table := NewTable()
	s := table.Resolve("grok", "https://grok.com")
	require.NotNil(t, s)
	assert.Equal(t, GenericSite, s.Site())

	s = table.Resolve("", "")
	require.NotNil(t, s)
	assert.Equal(t, GenericSite, s.Site())
}

func TestRegisterOverrides(t *testing.T) {
	table := NewTable()
	err := table.Register(types.StrategySpec{
		Site:           "grok",
		Hosts:          []string{"grok.com"},
		InputSelectors: []string{"textarea"},
	})
	require.NoError(t, err)
	assert.Equal(t, "grok", table.Resolve("anything", "https://grok.com/").Site())

	err = table.Register(types.StrategySpec{Site: "Claude", InputSelectors: []string{"div.ProseMirror"}})
	require.NoError(t, err)
	s, ok := table.Lookup("claude")
	require.True(t, ok)
	assert.Equal(t, []string{"div.ProseMirror"}, s.Spec().InputSelectors)

	assert.Error(t, table.Register(types.StrategySpec{Site: "bad"}))
	assert.Contains(t, table.Sites(), "grok")
}

func TestRegisterAllStopsAtError(t *testing.T) {
	table := NewTable()
	err := table.RegisterAll([]types.StrategySpec{
		{Site: "one", InputSelectors: []string{"textarea"}},
		{Site: "two"},
		{Site: "three", InputSelectors: []string{"textarea"}},
	})
	assert.ErrorIs(t, err, ErrInvalidStrategy)
	_, ok := table.Lookup("one")
	assert.True(t, ok)
	_, ok = table.Lookup("three")
	assert.False(t, ok)
}
