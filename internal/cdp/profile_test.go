package cdp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChrome writes a script that behaves like a browser started with
// --remote-debugging-port=0: it records its arguments in the profile
// directory, announces the fake browser's port there, and stays up.
func fakeChrome(t *testing.T, fb *fakeBrowser) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake browser script needs a POSIX shell")
	}
	u, err := url.Parse(fb.server.URL)
	require.NoError(t, err)

	script := fmt.Sprintf(`#!/bin/sh
for a in "$@"; do
  case "$a" in --user-data-dir=*) dir="${a#--user-data-dir=}";; esac
done
echo "$@" >> "$dir/launches"
printf '%%s\n/devtools/browser/test\n' %s > "$dir/DevToolsActivePort"
exec sleep 30
`, u.Port())
	path := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testLauncher(t *testing.T, exe, root string) *Launcher {
	t.Helper()
	l := NewLauncher(exe, root, WithStartTimeout(5*time.Second), WithGracePeriod(100*time.Millisecond))
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func TestProfileName(t *testing.T) {
	assert.Equal(t, "chat", profileName("persist:chat"))
	assert.Equal(t, "a_b_c", profileName("persist:a/b c"))
	assert.Equal(t, "_..", profileName("persist:.."))
	assert.Equal(t, "_", profileName("persist:"))
}

func TestLauncherProfileSurvivesRestart(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.result("Target.createTarget", map[string]any{"targetId": "T1"})
	fb.result("Target.attachToTarget", map[string]any{"sessionId": "S1"})
	exe := fakeChrome(t, fb)
	root := t.TempDir()
	ctx := context.Background()

	first := NewBrowser(testLauncher(t, exe, root))
	require.NoError(t, first.CreatePartition(ctx, "persist:chat"))
	_, err := first.OpenPage(ctx, "chat", "persist:chat", "https://chat.example/")
	require.NoError(t, err)
	assert.Empty(t, fb.Calls("Target.createBrowserContext"), "launched profiles use the default context")
	assert.Empty(t, fb.Calls("Target.createTarget")[0].Params["browserContextId"])

	dir := filepath.Join(root, "chat")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("session=1"), 0o600))
	require.NoError(t, first.Close(ctx))
	assert.Len(t, fb.Calls("Browser.close"), 1, "the browser is asked to flush and exit")

	second := NewBrowser(testLauncher(t, exe, root))
	require.NoError(t, second.CreatePartition(ctx, "persist:chat"))

	data, err := os.ReadFile(filepath.Join(dir, "Cookies"))
	require.NoError(t, err, "the second run reuses the profile directory")
	assert.Equal(t, "session=1", string(data))

	launches, err := os.ReadFile(filepath.Join(dir, "launches"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(launches)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "--user-data-dir="+dir)
		assert.Contains(t, line, "--remote-debugging-port=0")
	}
	assert.Equal(t, 2, fb.Connections())
}

func TestLauncherSeparatesPartitions(t *testing.T) {
	fb := newFakeBrowser(t)
	exe := fakeChrome(t, fb)
	root := t.TempDir()
	l := testLauncher(t, exe, root)

	a, err := l.Allocate(context.Background(), "persist:a")
	require.NoError(t, err)
	again, err := l.Allocate(context.Background(), "persist:a")
	require.NoError(t, err)
	b, err := l.Allocate(context.Background(), "persist:b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a.Conn, b.Conn)
	assert.DirExists(t, filepath.Join(root, "a"))
	assert.DirExists(t, filepath.Join(root, "b"))
}

func TestLauncherWipeRemovesProfile(t *testing.T) {
	fb := newFakeBrowser(t)
	exe := fakeChrome(t, fb)
	root := t.TempDir()
	l := testLauncher(t, exe, root)

	prof, err := l.Allocate(context.Background(), "persist:chat")
	require.NoError(t, err)
	dir := l.ProfileDir("persist:chat")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Local Storage"), []byte("x"), 0o600))

	require.NoError(t, l.Wipe(context.Background(), "persist:chat"))
	assert.NoDirExists(t, dir)
	select {
	case <-prof.Conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection to the wiped browser stayed open")
	}

	_, err = l.Allocate(context.Background(), "persist:chat")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "Local Storage"))
	assert.ErrorIs(t, err, os.ErrNotExist, "a wiped partition starts empty")
}

func TestLauncherReportsEarlyExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	exe := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\nexit 3\n"), 0o755))
	l := testLauncher(t, exe, t.TempDir())

	_, err := l.Allocate(context.Background(), "persist:chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before")
}

func TestBrowserClearPartitionWipesLaunchedProfile(t *testing.T) {
	fb := newFakeBrowser(t)
	fb.result("Target.createTarget", map[string]any{"targetId": "T1"})
	fb.result("Target.attachToTarget", map[string]any{"sessionId": "S1"})
	exe := fakeChrome(t, fb)
	root := t.TempDir()
	ctx := context.Background()

	b := NewBrowser(testLauncher(t, exe, root))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	require.NoError(t, b.CreatePartition(ctx, "persist:chat"))
	page, err := b.OpenPage(ctx, "chat", "persist:chat", "https://chat.example/")
	require.NoError(t, err)
	before := page.Conn()

	dir := filepath.Join(root, "chat")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("session=1"), 0o600))

	require.NoError(t, b.ClearPartition(ctx, "persist:chat"))
	assert.NoFileExists(t, filepath.Join(dir, "Cookies"))
	assert.NotSame(t, before, page.Conn(), "the page lives in the new browser")
	assert.Len(t, fb.Calls("Target.createTarget"), 2)

	select {
	case err := <-b.Lost():
		t.Fatalf("a deliberate wipe was reported as lost: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
