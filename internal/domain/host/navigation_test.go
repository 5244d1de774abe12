package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

func TestPolicyNormalize(t *testing.T) {
	p := Policy{DefaultScheme: "https"}
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "https://example.com"},
		{"  chat.example.com/c/1  ", "https://chat.example.com/c/1"},
		{"http://localhost:3000/", "http://localhost:3000/"},
		{"HTTPS://Example.com/Path", "https://Example.com/Path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := p.Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyRejects(t *testing.T) {
	p := Policy{}
	for _, in := range []string{
		"",
		"   ",
		"javascript:alert(1)",
		"JavaScript:void(0)",
		"data:text/html,<b>x</b>",
		"file:///etc/passwd",
		"ftp://example.com",
		"chrome://settings",
		"https://",
	} {
		_, err := p.Normalize(in)
		assert.True(t, errors.Is(err, types.ErrNavigationPolicy), "input %q", in)
	}
}

func TestPolicyAllowList(t *testing.T) {
	p := Policy{AllowedHosts: []string{"*.example.com", "localhost"}}

	_, err := p.Normalize("chat.example.com")
	assert.NoError(t, err)
	_, err = p.Normalize("http://localhost:8080")
	assert.NoError(t, err)

	_, err = p.Normalize("evil.test")
	assert.True(t, errors.Is(err, types.ErrNavigationPolicy))
	_, err = p.Normalize("example.com.evil.test")
	assert.Error(t, err)
}

func TestPayloadSanitises(t *testing.T) {
	info := Payload([]types.Panel{
		{ID: "a", Label: `<img src=x onerror=alert(1)>Chat`, Color: "#10a37f", Enabled: true, URL: "https://a/"},
		{ID: "b", Label: "Plain", Color: "red; background:url(x)"},
		{ID: "c", Label: "Named", Color: "teal"},
	})
	require.Len(t, info, 3)
	assert.Equal(t, "Chat", info[0].Label)
	assert.Equal(t, "#10a37f", info[0].Color)
	assert.True(t, info[0].Enabled)
	assert.Empty(t, info[1].Color)
	assert.Equal(t, "teal", info[2].Color)
}
