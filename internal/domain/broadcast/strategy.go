package broadcast

import (
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// ErrInvalidStrategy is returned when a strategy record cannot be compiled.
var ErrInvalidStrategy = errors.New("invalid strategy")

// DefaultExcludeLabels are labels that never identify a send control.
var DefaultExcludeLabels = []string{"menu", "settings", "close", "cancel", "back", "more", "options"}

// DefaultOpenSelectors reveal a file input on most sites.
var DefaultOpenSelectors = []string{
	`button[aria-label*="ttach"]`,
	`button[aria-label*="pload"]`,
	`button[aria-label*="Add"]`,
	`button[aria-label*="add"]`,
	`button[title*="ttach"]`,
	`button[title*="pload"]`,
	`input[type="file"] + button`,
	`label[for*="file"]`,
	`button[data-tooltip*="ttach"]`,
	`button[data-tooltip*="pload"]`,
}

var validModifiers = []string{"", "ctrl", "meta", "shift", "alt"}

// AttachTiming is the resolved attachment schedule for one site.
type AttachTiming struct {
	Settle      time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	FinalRetry  time.Duration
}

// Strategy is a compiled, immutable interaction record.
type Strategy struct {
	spec   types.StrategySpec
	base   scriptData
	open   string
	submit string
}

// Site returns the site key.
func (s *Strategy) Site() string { return s.spec.Site }

// Spec returns a copy of the declarative record.
func (s *Strategy) Spec() types.StrategySpec {
	out := s.spec
	out.Hosts = slices.Clone(s.spec.Hosts)
	out.InputSelectors = slices.Clone(s.spec.InputSelectors)
	out.Submit = slices.Clone(s.spec.Submit)
	out.ExcludeLabels = slices.Clone(s.spec.ExcludeLabels)
	if s.spec.Attach != nil {
		a := *s.spec.Attach
		a.OpenSelectors = slices.Clone(a.OpenSelectors)
		a.Accept = slices.Clone(a.Accept)
		out.Attach = &a
	}
	return out
}

// FillScript renders the fill step for prompt.
func (s *Strategy) FillScript(prompt string) (string, error) {
	data := s.base
	lit, err := jsLiteral(prompt)
	if err != nil {
		return "", err
	}
	data.Prompt = lit
	return render("fill", data)
}

// SubmitScript returns the submit step.
func (s *Strategy) SubmitScript() string { return s.submit }

// OpenAttachScript returns the script that clicks an attachment control.
func (s *Strategy) OpenAttachScript() string { return s.open }

// Accepts reports whether the site takes a file of the detected type.
// Families ("image/*") and the type's parents count, so a site accepting
// "text/plain" takes CSV files too.
func (s *Strategy) Accepts(mt *mimetype.MIME) bool {
	if s.spec.Attach == nil || len(s.spec.Attach.Accept) == 0 {
		return true
	}
	for m := mt; m != nil; m = m.Parent() {
		for _, a := range s.spec.Attach.Accept {
			if family, ok := strings.CutSuffix(a, "/*"); ok {
				if family == "*" || strings.HasPrefix(m.String(), family+"/") {
					return true
				}
				continue
			}
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

// Accept returns the accepted types, empty when any file is taken.
func (s *Strategy) Accept() []string {
	if s.spec.Attach == nil {
		return nil
	}
	return slices.Clone(s.spec.Attach.Accept)
}

// Timing resolves attachment timings, falling back to defaults for unset
// hints.
func (s *Strategy) Timing(defaults AttachTiming) AttachTiming {
	t := defaults
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 1
	}
	h := s.spec.Attach
	if h == nil {
		return t
	}
	if h.SettleMs > 0 {
		t.Settle = time.Duration(h.SettleMs) * time.Millisecond
	}
	if h.MaxAttempts > 0 {
		t.MaxAttempts = h.MaxAttempts
	}
	if h.RetryDelayMs > 0 {
		t.RetryDelay = time.Duration(h.RetryDelayMs) * time.Millisecond
	}
	if h.FinalRetryMs > 0 {
		t.FinalRetry = time.Duration(h.FinalRetryMs) * time.Millisecond
	}
	return t
}

// Compile validates a record and prepares its scripts. Selectors are parsed
// with cascadia and every script is syntax checked.
func Compile(spec types.StrategySpec) (*Strategy, error) {
	spec.Site = strings.TrimSpace(strings.ToLower(spec.Site))
	if spec.Site == "" {
		return nil, fmt.Errorf("%w: site is required", ErrInvalidStrategy)
	}
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidStrategy, spec.Site, fmt.Sprintf(format, args...))
	}

	if len(spec.InputSelectors) == 0 {
		return nil, fail("at least one input selector is required")
	}
	for _, sel := range spec.InputSelectors {
		if err := checkSelector(sel); err != nil {
			return nil, fail("input selector %q: %v", sel, err)
		}
	}

	switch spec.ValueKind {
	case "":
		spec.ValueKind = types.ValueAuto
	case types.ValueAuto, types.ValuePlain, types.ValueRichText:
	default:
		return nil, fail("unknown value kind %q", spec.ValueKind)
	}

	if len(spec.Submit) == 0 {
		spec.Submit = []types.SubmitRule{
			{Kind: types.SubmitByLabel},
			{Kind: types.SubmitByType},
			{Kind: types.SubmitByIconInForm},
		}
	}
	for _, rule := range spec.Submit {
		switch rule.Kind {
		case types.SubmitByLabel, types.SubmitByTitle, types.SubmitByType,
			types.SubmitByIconInForm, types.SubmitByIcon, types.SubmitNearInput:
		case types.SubmitBySelector:
			if err := checkSelector(rule.Selector); err != nil {
				return nil, fail("submit selector %q: %v", rule.Selector, err)
			}
		default:
			return nil, fail("unknown submit rule %q", rule.Kind)
		}
	}

	exclude := spec.ExcludeLabels
	if len(exclude) == 0 {
		exclude = DefaultExcludeLabels
	}
	spec.ExcludeLabels = make([]string, len(exclude))
	for i, l := range exclude {
		spec.ExcludeLabels[i] = strings.ToLower(l)
	}

	spec.EnterModifier = strings.ToLower(spec.EnterModifier)
	if !slices.Contains(validModifiers, spec.EnterModifier) {
		return nil, fail("unknown enter modifier %q", spec.EnterModifier)
	}

	openSelectors := DefaultOpenSelectors
	if spec.Attach != nil {
		if spec.Attach.MaxAttempts < 0 || spec.Attach.SettleMs < 0 || spec.Attach.RetryDelayMs < 0 || spec.Attach.FinalRetryMs < 0 {
			return nil, fail("attach hints must not be negative")
		}
		if len(spec.Attach.OpenSelectors) > 0 {
			openSelectors = spec.Attach.OpenSelectors
		}
		accept := make([]string, 0, len(spec.Attach.Accept))
		for _, a := range spec.Attach.Accept {
			a = strings.ToLower(strings.TrimSpace(a))
			if _, _, err := mime.ParseMediaType(a); err != nil || !strings.Contains(a, "/") {
				return nil, fail("attach accept %q is not a media type", a)
			}
			accept = append(accept, a)
		}
		a := *spec.Attach
		a.Accept = accept
		spec.Attach = &a
	}
	for _, sel := range openSelectors {
		if err := checkSelector(sel); err != nil {
			return nil, fail("attach selector %q: %v", sel, err)
		}
	}

	data, err := baseData(spec, openSelectors)
	if err != nil {
		return nil, fail("%v", err)
	}

	s := &Strategy{spec: spec, base: data}
	if s.submit, err = render("submit", data); err != nil {
		return nil, fail("render submit: %v", err)
	}
	if s.open, err = render("open", data); err != nil {
		return nil, fail("render attach: %v", err)
	}
	fill, err := s.FillScript("syntax check")
	if err != nil {
		return nil, fail("render fill: %v", err)
	}
	for name, src := range map[string]string{"fill": fill, "submit": s.submit, "attach": s.open} {
		if _, err := goja.Compile(spec.Site+"-"+name, src, false); err != nil {
			return nil, fail("%s script: %v", name, err)
		}
	}
	return s, nil
}

func checkSelector(sel string) error {
	if strings.TrimSpace(sel) == "" {
		return errors.New("empty selector")
	}
	_, err := cascadia.ParseGroup(sel)
	return err
}

func baseData(spec types.StrategySpec, open []string) (scriptData, error) {
	var d scriptData
	var err error
	d.Deep = spec.DeepQuery
	d.FireChange = spec.FireChange
	if d.Inputs, err = jsLiteral(spec.InputSelectors); err != nil {
		return d, err
	}
	if d.ValueKind, err = jsLiteral(spec.ValueKind); err != nil {
		return d, err
	}
	if d.Rules, err = jsLiteral(spec.Submit); err != nil {
		return d, err
	}
	if d.Exclude, err = jsLiteral(spec.ExcludeLabels); err != nil {
		return d, err
	}
	if d.Modifier, err = jsLiteral(spec.EnterModifier); err != nil {
		return d, err
	}
	if d.Open, err = jsLiteral(open); err != nil {
		return d, err
	}
	d.Prompt = `""`
	return d, nil
}

// jsLiteral encodes v as a JSON literal that is also valid JavaScript.
func jsLiteral(v any) (string, error) {
	out, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "", err
	}
	out = strings.ReplaceAll(out, "\u2028", `\u2028`)
	out = strings.ReplaceAll(out, "\u2029", `\u2029`)
	return out, nil
}
