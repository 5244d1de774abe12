package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/domain/broadcast"
	"github.com/GriffinCanCode/tabwall/internal/domain/layout"
	"github.com/GriffinCanCode/tabwall/internal/domain/registry"
	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

type fakeWindow struct {
	mu     sync.Mutex
	bounds types.Bounds
	placed map[string]types.Bounds
}

func newFakeWindow(w, h int) *fakeWindow {
	return &fakeWindow{bounds: types.Bounds{Width: w, Height: h}, placed: map[string]types.Bounds{}}
}

func (f *fakeWindow) ContentSize() types.Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.Size{Width: f.bounds.Width, Height: f.bounds.Height}
}

func (f *fakeWindow) Place(id string, b types.Bounds) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed[id] = b
}

func (f *fakeWindow) SetBounds(b types.Bounds) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = b
}

func (f *fakeWindow) WindowBounds() (types.Bounds, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bounds, true
}

func (f *fakeWindow) placement(id string) types.Bounds {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placed[id]
}

type event struct {
	Type string
	Data any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{eventType, data})
}

func (r *recorder) last(eventType string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i].Data, true
		}
	}
	return nil, false
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	m        *Manager
	reg      *registry.Registry
	surfaces *surface.Directory
	window   *fakeWindow
	pub      *recorder
	fakes    map[string]*surface.Fake
	launches map[string]int
	path     string
}

func newHarness(t *testing.T, file *config.PanelFile) *harness {
	t.Helper()
	h := &harness{
		reg:      registry.New(),
		surfaces: surface.NewDirectory(),
		window:   newFakeWindow(1920, 1080),
		pub:      &recorder{},
		fakes:    map[string]*surface.Fake{},
		launches: map[string]int{},
		path:     filepath.Join(t.TempDir(), "config.json"),
	}
	for _, p := range file.Panels {
		_, err := h.reg.Register(p.ID, p, "")
		require.NoError(t, err)
	}
	var fmu sync.Mutex
	launcher := LauncherFunc(func(ctx context.Context, p types.Panel, _ string) (surface.Surface, error) {
		f := surface.NewFake("")
		require.NoError(t, f.Load(ctx, p.CurrentURL))
		fmu.Lock()
		h.fakes[p.ID] = f
		h.launches[p.ID]++
		fmu.Unlock()
		return f, nil
	})
	engine := layout.NewEngine(h.window, h.reg, Geometry(file, 40, 14))
	dispatcher := broadcast.NewDispatcher(h.reg, h.surfaces, nil, broadcast.DefaultConfig(),
		broadcast.WithSleep(func(context.Context, time.Duration) error { return nil }))

	m, err := NewManager(Deps{
		Registry:   h.reg,
		Surfaces:   h.surfaces,
		Engine:     engine,
		Dispatcher: dispatcher,
		Window:     h.window,
		Launcher:   launcher,
		Publisher:  h.pub,
	}, file, h.path)
	require.NoError(t, err)
	h.m = m
	t.Cleanup(func() { _ = m.Close() })
	return h
}

func threePanels() *config.PanelFile {
	return &config.PanelFile{
		PanelWidth:        500,
		ControlPanelWidth: 340,
		Panels: []types.PanelConfig{
			{ID: "a", Label: "A", URL: "https://a.example/", Color: "#111"},
			{ID: "b", Label: "B", URL: "https://b.example/", Color: "#222"},
			{ID: "c", Label: "C", URL: "https://c.example/", Color: "#333"},
		},
	}
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := NewManager(Deps{}, nil, "")
	assert.Error(t, err)
}

func TestStartLaunchesAndPushes(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	assert.Equal(t, 3, h.surfaces.Len())
	data, ok := h.pub.last(types.EventPanelInfo)
	require.True(t, ok)
	info := data.([]types.PanelInfo)
	require.Len(t, info, 3)
	assert.Equal(t, "a", info[0].ID)
	assert.True(t, h.pub.count(types.EventScrollState) > 0)

	st := h.m.ScrollState()
	assert.Equal(t, 3, st.TotalEnabled)
	assert.Equal(t, 40, h.window.placement("a").Y)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(h.path)
		return err == nil
	}, time.Second, 10*time.Millisecond, "missing panel file is written on start")
}

func TestNavigationUpdatesToolbar(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	before := h.pub.count(types.EventToolbarInfo)

	h.fakes["b"].Navigate("https://b.example/thread/1")

	p, _ := h.reg.Get("b")
	assert.Equal(t, "https://b.example/thread/1", p.CurrentURL)
	assert.Equal(t, before+1, h.pub.count(types.EventToolbarInfo))
}

func TestTogglePanel(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	require.NoError(t, h.m.TogglePanel("b", false))
	assert.Equal(t, 2, h.m.ScrollState().TotalEnabled)
	assert.Equal(t, layout.Offscreen, h.window.placement("b").X)

	err := h.m.TogglePanel("zzz", true)
	assert.True(t, errors.Is(err, types.ErrPanelNotFound))

	cfg := h.m.Config()
	require.NotNil(t, cfg.Panels[1].Enabled)
	assert.False(t, *cfg.Panels[1].Enabled)
}

func TestNavigateURL(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	ctx := context.Background()

	url, err := h.m.NavigateURL(ctx, "a", "  example.org/path ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/path", url)
	assert.Equal(t, url, h.fakes["a"].URL())

	_, err = h.m.NavigateURL(ctx, "a", "javascript:alert(1)")
	assert.True(t, errors.Is(err, types.ErrNavigationPolicy))
	assert.Equal(t, url, h.fakes["a"].URL())

	_, err = h.m.NavigateURL(ctx, "nope", "example.org")
	assert.True(t, errors.Is(err, types.ErrPanelNotFound))

	h.fakes["a"].LoadErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	_, err = h.m.NavigateURL(ctx, "a", "bad.example")
	assert.True(t, errors.Is(err, types.ErrNavigation))
}

func TestNavigateBack(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	ctx := context.Background()

	// the first load has nothing behind it
	require.NoError(t, h.m.NavigateBack(ctx, "c"))
	assert.Equal(t, "https://c.example/", h.fakes["c"].URL())

	_, err := h.m.NavigateURL(ctx, "c", "https://c.example/next")
	require.NoError(t, err)
	require.NoError(t, h.m.NavigateBack(ctx, "c"))
	assert.Equal(t, "https://c.example/", h.fakes["c"].URL())
}

func TestReload(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	require.NoError(t, h.m.Reload(context.Background(), "a"))
	assert.Contains(t, h.fakes["a"].Scripts(), "<reload>")

	err := h.m.Reload(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrPanelNotFound))

	_, err = h.reg.Register("d", types.PanelConfig{ID: "d", URL: "https://d.example/"}, "")
	require.NoError(t, err)
	err = h.m.Reload(context.Background(), "d")
	assert.True(t, errors.Is(err, types.ErrSurfaceMissing))
}

func TestSaveConfigReordersAndAdds(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	err := h.m.SaveConfig(context.Background(), types.ConfigUpdate{
		PanelWidth: 600,
		Panels: []types.PanelConfig{
			{ID: "c", Label: "Cee", URL: "https://c.example/"},
			{ID: "new", Label: "New", URL: "https://new.example/"},
			{ID: "a", Enabled: types.BoolPtr(false)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "new", "a", "b"}, h.reg.IDs())
	a, _ := h.reg.Get("a")
	assert.False(t, a.Enabled)
	c, _ := h.reg.Get("c")
	assert.Equal(t, "Cee", c.Label)

	_, launched := h.surfaces.Surface("new")
	assert.True(t, launched)
	assert.Equal(t, 600, h.m.engine.Geometry().PanelWidth)

	cfg := h.m.Config()
	assert.Equal(t, 600, cfg.PanelWidth)
	ids := make([]string, 0, len(cfg.Panels))
	for _, p := range cfg.Panels {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "new", "a", "b"}, ids)

	require.NoError(t, h.m.Close())
	saved, err := config.LoadPanelFile(h.path)
	require.NoError(t, err)
	assert.Equal(t, 600, saved.PanelWidth)
	assert.Len(t, saved.Panels, 4)
}

func TestSaveConfigLaunchesRepeatedIDOnce(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	err := h.m.SaveConfig(context.Background(), types.ConfigUpdate{
		Panels: []types.PanelConfig{
			{ID: "new", Label: "First", URL: "https://new.example/"},
			{ID: "a", Label: "A", URL: "https://a.example/", Color: "#111"},
			{ID: "new", Label: "Second", URL: "https://other.example/"},
			{ID: ""},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, h.launches["new"])
	assert.Equal(t, []string{"new", "a", "b", "c"}, h.reg.IDs())
	p, _ := h.reg.Get("new")
	assert.Equal(t, "First", p.Label)
	assert.Len(t, h.m.Config().Panels, 4, "the file holds one entry per panel")
}

func TestToggleSurvivesOwnPanelFileWrites(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.m.WatchPanelFile(ctx))

	require.NoError(t, h.m.SaveConfig(context.Background(), types.ConfigUpdate{PanelWidth: 520}))
	require.NoError(t, h.m.panelFile.Flush())
	require.NoError(t, h.m.TogglePanel("b", false))
	require.NoError(t, h.m.panelFile.Flush())

	// Give the watcher time to see both writes.
	time.Sleep(700 * time.Millisecond)
	b, _ := h.reg.Get("b")
	assert.False(t, b.Enabled, "the host's own writes are not reapplied")

	saved, err := config.LoadPanelFile(h.path)
	require.NoError(t, err)
	for _, p := range saved.Panels {
		if p.ID == "b" {
			require.NotNil(t, p.Enabled)
			assert.False(t, *p.Enabled, "toggles reach the panel file")
		}
	}

	edited := saved.Clone()
	edited.Panels[0].Label = "Edited"
	data, err := config.EncodePanelFile(h.path, edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(h.path, data, 0o644))
	assert.Eventually(t, func() bool {
		p, _ := h.reg.Get(edited.Panels[0].ID)
		return p.Label == "Edited"
	}, 3*time.Second, 20*time.Millisecond, "outside edits still apply")
}

func TestSaveConfigKnobsOnly(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	require.NoError(t, h.m.SaveConfig(context.Background(), types.ConfigUpdate{ControlPanelWidth: 280}))
	assert.Equal(t, []string{"a", "b", "c"}, h.reg.IDs())
	assert.Equal(t, 280, h.m.engine.Geometry().SidebarWidth)
	assert.Equal(t, 1920-280, h.m.ScrollState().AvailableWidth)
}

func TestApplyPanelFile(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	edited := threePanels()
	edited.Panels = []types.PanelConfig{edited.Panels[2], edited.Panels[0]}
	edited.Strategies = []types.StrategySpec{{
		Site:           "example",
		InputSelectors: []string{"textarea"},
		ValueKind:      types.ValuePlain,
	}}
	h.m.applyPanelFile(edited)

	assert.Equal(t, []string{"c", "a", "b"}, h.reg.IDs())
	_, ok := h.m.dispatcher.Table().Lookup("example")
	assert.True(t, ok)
}

func TestScrollCommands(t *testing.T) {
	file := threePanels()
	for _, id := range []string{"d", "e", "f"} {
		file.Panels = append(file.Panels, types.PanelConfig{ID: id, URL: "https://" + id + ".example/"})
	}
	h := newHarness(t, file)
	require.NoError(t, h.m.Start(context.Background()))

	st := h.m.ScrollBy(250)
	assert.Equal(t, 250.0, st.OffsetX)

	h.m.HandleScroll("a", 100)
	assert.Equal(t, 350.0, h.m.ScrollState().OffsetX)

	st = h.m.ScrollToFraction(1)
	assert.Equal(t, float64(st.MaxScroll), st.OffsetX)

	st = h.m.ScrollBy(-1e9)
	assert.Zero(t, st.OffsetX)
}

func TestResizeClampsToMinimum(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))

	st := h.m.Resize(300, 200)
	b, _ := h.window.WindowBounds()
	assert.Equal(t, MinimumSize.Width, b.Width)
	assert.Equal(t, MinimumSize.Height, b.Height)
	assert.Equal(t, MinimumSize.Width-340, st.AvailableWidth)
}

func TestBroadcastPublishesResult(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	for _, f := range h.fakes {
		f.Script = func(string) (any, error) { return "OK", nil }
	}

	res := h.m.Broadcast(context.Background(), types.BroadcastRequest{Prompt: "hi", PanelIDs: []string{"a", "zzz"}})
	require.Len(t, res, 2)
	assert.True(t, res["a"].Success)
	assert.Equal(t, types.CodeUnavailable, res["zzz"].Code)

	data, ok := h.pub.last(types.EventBroadcast)
	require.True(t, ok)
	assert.Equal(t, res, data)
}

func TestResetWithoutIsolation(t *testing.T) {
	h := newHarness(t, threePanels())
	err := h.m.ResetTab(context.Background(), "a")
	assert.True(t, errors.Is(err, types.ErrSurfaceMissing))
	assert.Error(t, h.m.ResetAll(context.Background()))
}

func TestDiagnose(t *testing.T) {
	h := newHarness(t, threePanels())
	require.NoError(t, h.m.Start(context.Background()))
	h.fakes["a"].HTML = `<html><body><textarea></textarea><button aria-label="Send"></button></body></html>`

	d, err := h.m.Diagnose(context.Background(), "a")
	require.NoError(t, err)
	assert.NotEmpty(t, d.FirstInput)

	_, err = h.m.Diagnose(context.Background(), "missing")
	assert.True(t, errors.Is(err, types.ErrPanelNotFound))
}
