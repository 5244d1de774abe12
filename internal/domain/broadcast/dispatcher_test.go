package broadcast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tabwall/internal/domain/registry"
	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// answers scripts the way a page for strategy s would.
type answers struct {
	fill   func() (any, error)
	submit func() (any, error)
	open   func() (any, error)
}

func respond(t *testing.T, s *Strategy, a answers) func(string) (any, error) {
	t.Helper()
	submit := s.SubmitScript()
	open := s.OpenAttachScript()
	return func(script string) (any, error) {
		switch script {
		case submit:
			if a.submit != nil {
				return a.submit()
			}
			return resultClicked, nil
		case open:
			if a.open != nil {
				return a.open()
			}
			return resultNoButton, nil
		default:
			if a.fill != nil {
				return a.fill()
			}
			return resultOK, nil
		}
	}
}

func value(v any) func() (any, error) {
	return func() (any, error) { return v, nil }
}

type fixture struct {
	reg      *registry.Registry
	surfaces surface.Set
	table    *Table
	sleeps   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{reg: registry.New(), surfaces: surface.Set{}, table: NewTable()}
}

func (f *fixture) add(t *testing.T, id, url string, enabled bool, a answers) *surface.Fake {
	t.Helper()
	_, err := f.reg.Register(id, types.PanelConfig{ID: id, Label: id, URL: url, Enabled: types.BoolPtr(enabled)}, "")
	require.NoError(t, err)
	fake := surface.NewFake(url)
	fake.Script = respond(t, f.table.Resolve(id, url), a)
	f.surfaces[id] = fake
	return fake
}

func (f *fixture) dispatcher(opts ...Option) *Dispatcher {
	opts = append([]Option{WithSleep(func(ctx context.Context, d time.Duration) error {
		f.sleeps.Add(int64(d))
		return ctx.Err()
	})}, opts...)
	return NewDispatcher(f.reg, f.surfaces, f.table, DefaultConfig(), opts...)
}

func TestBroadcastAllSucceed(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	f.add(t, "claude", "https://claude.ai", true, answers{submit: value(resultEnter)})

	res := f.dispatcher().Broadcast(context.Background(), "hello", []string{"chatgpt", "claude"}, "")

	require.Len(t, res, 2)
	assert.Equal(t, types.TargetResult{Success: true, Submit: types.SubmitClicked}, res["chatgpt"])
	assert.Equal(t, types.TargetResult{Success: true, Submit: types.SubmitEnter}, res["claude"])
	assert.Equal(t, 2, res.Succeeded())
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	first := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	f.add(t, "gemini", "https://gemini.google.com", true, answers{fill: func() (any, error) {
		panic("renderer crashed")
	}})
	third := f.add(t, "claude", "https://claude.ai", true, answers{})

	res := f.dispatcher().Broadcast(context.Background(), "hello", []string{"chatgpt", "gemini", "claude"}, "")

	require.Len(t, res, 3)
	assert.True(t, res["chatgpt"].Success)
	assert.True(t, res["claude"].Success)
	assert.False(t, res["gemini"].Success)
	assert.Equal(t, types.CodeInternal, res["gemini"].Code)
	assert.Contains(t, res["gemini"].Error, "renderer crashed")

	assert.Len(t, first.Scripts(), 2)
	assert.Len(t, third.Scripts(), 2)
}

func TestBroadcastScriptError(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", true, answers{fill: value("ERROR:boom")})
	f.add(t, "claude", "https://claude.ai", true, answers{})

	res := f.dispatcher().Broadcast(context.Background(), "hi", []string{"chatgpt", "claude"}, "")

	assert.Equal(t, types.TargetResult{Success: false, Error: "ERROR:boom", Code: types.CodeInjection}, res["chatgpt"])
	assert.True(t, res["claude"].Success)
}

func TestBroadcastSurfaceError(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", true, answers{fill: func() (any, error) {
		return nil, errors.New("target closed")
	}})

	res := f.dispatcher().Broadcast(context.Background(), "hi", []string{"chatgpt"}, "")

	assert.False(t, res["chatgpt"].Success)
	assert.Equal(t, types.CodeSurface, res["chatgpt"].Code)
	assert.Contains(t, res["chatgpt"].Error, "target closed")
}

func TestBroadcastGenericFallbackInputNotFound(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	unknown := f.add(t, "notes", "https://notes.internal.example", true, answers{fill: value(resultInputNotFound)})

	res := f.dispatcher().Broadcast(context.Background(), "hello", []string{"chatgpt", "notes"}, "")

	assert.True(t, res["chatgpt"].Success)
	assert.Equal(t, types.TargetResult{
		Success: false,
		Error:   "Input element not found — is the page fully loaded?",
		Code:    types.CodeInputNotFound,
	}, res["notes"])
	require.Len(t, unknown.Scripts(), 1, "submit is not attempted after a failed fill")
}

func TestBroadcastUnavailableTargets(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", false, answers{})
	_, err := f.reg.Register("orphan", types.PanelConfig{ID: "orphan", URL: "https://claude.ai"}, "")
	require.NoError(t, err)

	res := f.dispatcher().Broadcast(context.Background(), "hello", []string{"chatgpt", "missing", "orphan"}, "")

	assert.Equal(t, types.TargetResult{Success: false, Error: MsgUnavailable, Code: types.CodeUnavailable}, res["chatgpt"])
	assert.Equal(t, types.TargetResult{Success: false, Error: MsgUnavailable, Code: types.CodeUnavailable}, res["missing"])
	assert.False(t, res["orphan"].Success)
	assert.Equal(t, types.CodeUnavailable, res["orphan"].Code)
}

func TestBroadcastEmptyAndDuplicateTargets(t *testing.T) {
	f := newFixture(t)
	fake := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	d := f.dispatcher()

	assert.Empty(t, d.Broadcast(context.Background(), "hi", nil, ""))

	res := d.Broadcast(context.Background(), "hi", []string{"chatgpt", "chatgpt"}, "")
	assert.Len(t, res, 1)
	assert.Len(t, fake.Scripts(), 2)
}

func TestBroadcastSubmitOutcomes(t *testing.T) {
	tests := []struct {
		answer string
		want   types.TargetResult
	}{
		{resultClicked, types.TargetResult{Success: true, Submit: types.SubmitClicked}},
		{resultEnter, types.TargetResult{Success: true, Submit: types.SubmitEnter}},
		{resultNoAction, types.TargetResult{Success: true, Submit: types.SubmitNone}},
		{"ERROR:detached", types.TargetResult{Success: false, Error: "ERROR:detached", Code: types.CodeInjection}},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			f := newFixture(t)
			f.add(t, "claude", "https://claude.ai", true, answers{submit: value(tt.answer)})
			res := f.dispatcher().Broadcast(context.Background(), "hi", []string{"claude"}, "")
			assert.Equal(t, tt.want, res["claude"])
		})
	}
}

func TestBroadcastPromptIsEncoded(t *testing.T) {
	f := newFixture(t)
	fake := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	prompt := "line one\nline \"two\" `three`"

	f.dispatcher().Broadcast(context.Background(), prompt, []string{"chatgpt"}, "")

	scripts := fake.Scripts()
	require.NotEmpty(t, scripts)
	assert.Contains(t, scripts[0], `"line one\nline \"two\" `+"`three`"+`"`)
}

func TestBroadcastAttachesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("some notes"), 0o644))

	f := newFixture(t)
	fake := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{open: value(resultClicked)})
	fake.Inputs = []surface.NodeRef{7, 9}
	metrics := monitoring.NewMetrics()

	res := f.dispatcher(WithMetrics(metrics)).Broadcast(context.Background(), "read this", []string{"chatgpt"}, path)

	assert.Equal(t, types.TargetResult{Success: true, Submit: types.SubmitClicked, Attached: true}, res["chatgpt"])
	assert.Equal(t, []string{path}, fake.Attached[7])
	assert.Equal(t, []string{path}, fake.Attached[9])
	cfg := DefaultConfig()
	assert.Equal(t, int64(cfg.Attach.Settle+cfg.PostAttachDelay+cfg.SettleDelay), f.sleeps.Load())
}

func TestBroadcastAttachRetriesThenDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o644))

	f := newFixture(t)
	var opens atomic.Int32
	fake := f.add(t, "gemini", "https://gemini.google.com/app", true, answers{open: func() (any, error) {
		opens.Add(1)
		return resultClicked, nil
	}})

	res := f.dispatcher().Broadcast(context.Background(), "describe", []string{"gemini"}, path)

	assert.Equal(t, types.TargetResult{Success: true, Submit: types.SubmitClicked}, res["gemini"])
	assert.Empty(t, fake.Attached)
	assert.Equal(t, int32(2), opens.Load(), "opened once up front and once for the final retry")
	// settle 1500 + two retries of 800 + final 2000 + submit settle 700
	assert.Equal(t, (1500+800+800+2000+700)*int64(time.Millisecond), f.sleeps.Load())
}

func TestBroadcastUnsupportedFileSendsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04\x14\x00\x00\x00"), 0o644))

	f := newFixture(t)
	require.NoError(t, f.table.Register(types.StrategySpec{
		Site:           "images",
		Hosts:          []string{"images.example"},
		InputSelectors: []string{"textarea"},
		Attach:         &types.AttachHints{Accept: []string{"image/*"}},
	}))
	var opens atomic.Int32
	fake := f.add(t, "pics", "https://images.example/", true, answers{open: func() (any, error) {
		opens.Add(1)
		return resultClicked, nil
	}})
	fake.Inputs = []surface.NodeRef{3}
	metrics := monitoring.NewMetrics()
	d := f.dispatcher(WithMetrics(metrics))

	res := d.Broadcast(context.Background(), "look", []string{"pics"}, path)
	assert.Equal(t, types.TargetResult{Success: true, Submit: types.SubmitClicked}, res["pics"])
	assert.Empty(t, fake.Attached)
	assert.Zero(t, opens.Load(), "the attachment control is not opened")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AttachAttempts.WithLabelValues("images", "unsupported")))

	strategy := f.table.Resolve("pics", "https://images.example/")
	_, err := d.tryAttach(context.Background(), logging.NewNop(), fake, strategy, path)
	var unsupported *UnsupportedFileError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "images", unsupported.Site)
	assert.Equal(t, "application/zip", unsupported.MIME)
	assert.Equal(t, []string{"image/*"}, unsupported.Accept)
	assert.ErrorIs(t, err, types.ErrFileAttachment)
}

func TestBroadcastMissingFileSendsText(t *testing.T) {
	f := newFixture(t)
	fake := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	fake.Inputs = []surface.NodeRef{1}

	res := f.dispatcher().Broadcast(context.Background(), "hi", []string{"chatgpt"}, filepath.Join(t.TempDir(), "gone.pdf"))

	assert.True(t, res["chatgpt"].Success)
	assert.False(t, res["chatgpt"].Attached)
	assert.Empty(t, fake.Attached)
}

func TestBroadcastDirectoryIsNotAttached(t *testing.T) {
	f := newFixture(t)
	fake := f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	fake.Inputs = []surface.NodeRef{1}

	res := f.dispatcher().Broadcast(context.Background(), "hi", []string{"chatgpt"}, t.TempDir())

	assert.True(t, res["chatgpt"].Success)
	assert.False(t, res["chatgpt"].Attached)
}

func TestBroadcastCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.add(t, "chatgpt", "https://chatgpt.com", true, answers{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.dispatcher().Broadcast(ctx, "hi", []string{"chatgpt"}, "")

	assert.False(t, res["chatgpt"].Success)
	assert.True(t, strings.Contains(res["chatgpt"].Error, "canceled"))
}
