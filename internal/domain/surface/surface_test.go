package surface

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	a := NewFake("https://a.example")
	d.Put("a", a)

	got, ok := d.Surface("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, d.Len())

	_, ok = d.Delete("a")
	assert.True(t, ok)
	_, ok = d.Surface("a")
	assert.False(t, ok)
}

func TestDirectoryConcurrentAccess(t *testing.T) {
	d := NewDirectory()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			d.Put(id, NewFake(""))
			d.Surface(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, d.Len())
}

func TestFakeHistoryAndListeners(t *testing.T) {
	f := NewFake("https://a.example/1")
	var seen []string
	f.OnNavigate(func(u string) { seen = append(seen, u) })

	ctx := context.Background()
	require.NoError(t, f.Load(ctx, "https://a.example/2"))
	ok, err := f.CanGoBack(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.GoBack(ctx))
	assert.Equal(t, "https://a.example/1", f.URL())
	assert.Equal(t, []string{"https://a.example/2", "https://a.example/1"}, seen)
	assert.Error(t, f.GoBack(ctx))
}
