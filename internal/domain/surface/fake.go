package surface

import (
	"context"
	"errors"
	"sync"
)

// Fake is an in-memory Surface for tests. Script answers are produced by
// Script, which receives every executed script in order.
type Fake struct {
	mu        sync.Mutex
	url       string
	history   []string
	scripts   []string
	listeners []func(string)

	Script    func(script string) (any, error)
	LoadErr   error
	Inputs    []NodeRef
	InputsErr error
	Attached  map[NodeRef][]string
	HTML      string
}

// NewFake creates a fake at url.
func NewFake(url string) *Fake {
	return &Fake{url: url, Attached: map[NodeRef][]string{}}
}

func (f *Fake) Load(_ context.Context, url string) error {
	f.mu.Lock()
	if f.LoadErr != nil {
		err := f.LoadErr
		f.mu.Unlock()
		return err
	}
	if f.url != "" {
		f.history = append(f.history, f.url)
	}
	f.url = url
	listeners := append([]func(string){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(url)
	}
	return nil
}

func (f *Fake) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, "<reload>")
	return nil
}

func (f *Fake) CanGoBack(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history) > 0, nil
}

func (f *Fake) GoBack(context.Context) error {
	f.mu.Lock()
	if len(f.history) == 0 {
		f.mu.Unlock()
		return errors.New("no history")
	}
	f.url = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	url := f.url
	listeners := append([]func(string){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(url)
	}
	return nil
}

func (f *Fake) ExecuteScript(ctx context.Context, script string) (any, error) {
	f.mu.Lock()
	f.scripts = append(f.scripts, script)
	answer := f.Script
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, nil
	}
	return answer(script)
}

func (f *Fake) OnNavigate(fn func(string)) {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *Fake) FileInputs(context.Context) ([]NodeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NodeRef(nil), f.Inputs...), f.InputsErr
}

func (f *Fake) SetFileInputFiles(_ context.Context, node NodeRef, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attached[node] = append([]string(nil), paths...)
	return nil
}

func (f *Fake) OuterHTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HTML, nil
}

// URL returns the current location.
func (f *Fake) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// Scripts returns every executed script.
func (f *Fake) Scripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// Navigate simulates an in-page navigation.
func (f *Fake) Navigate(url string) {
	_ = f.Load(context.Background(), url)
}

// Set is a map-backed Provider.
type Set map[string]Surface

func (s Set) Surface(id string) (Surface, bool) {
	v, ok := s[id]
	return v, ok
}
