package broadcast

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// SelectorMatch counts matches of one selector.
type SelectorMatch struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
}

// RuleMatch counts candidate controls for one submit rule.
type RuleMatch struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
	Count    int    `json:"count"`
}

// Diagnosis reports how a strategy sees a captured document. Shadow roots
// are not part of serialized markup, so deep-query sites may under-report.
type Diagnosis struct {
	Site         string          `json:"site"`
	Inputs       []SelectorMatch `json:"inputs"`
	FirstInput   string          `json:"firstInput,omitempty"`
	Submit       []RuleMatch     `json:"submit"`
	FileInputs   int             `json:"fileInputs"`
	OpenControls int             `json:"openControls"`
}

// Diagnose evaluates s against html without a live page. Visibility and
// enabled state are approximated from the disabled, hidden and readonly
// attributes.
func Diagnose(html string, s *Strategy) (*Diagnosis, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	spec := s.spec

	d := &Diagnosis{Site: spec.Site}
	for _, sel := range spec.InputSelectors {
		n := doc.Find(sel).FilterFunction(func(_ int, el *goquery.Selection) bool {
			return usable(el) && !hasAttr(el, "readonly")
		}).Length()
		d.Inputs = append(d.Inputs, SelectorMatch{Selector: sel, Count: n})
		if n > 0 && d.FirstInput == "" {
			d.FirstInput = sel
		}
	}

	buttons := doc.Find("button").FilterFunction(func(_ int, el *goquery.Selection) bool {
		return usable(el)
	})
	for _, rule := range spec.Submit {
		m := RuleMatch{Kind: rule.Kind, Selector: rule.Selector}
		switch rule.Kind {
		case types.SubmitByLabel:
			m.Count = buttons.FilterFunction(func(_ int, b *goquery.Selection) bool {
				return mentionsSend(b, "aria-label")
			}).Length()
		case types.SubmitByTitle:
			m.Count = buttons.FilterFunction(func(_ int, b *goquery.Selection) bool {
				return mentionsSend(b, "title")
			}).Length()
		case types.SubmitByType:
			m.Count = buttons.Filter(`[type="submit"]`).Length()
		case types.SubmitByIconInForm:
			m.Count = buttons.FilterFunction(func(_ int, b *goquery.Selection) bool {
				inForm := b.Closest("form").Length() > 0 || b.Closest(`[role="form"]`).Length() > 0
				return hasIcon(b) && inForm && !excludedLabel(b, spec.ExcludeLabels)
			}).Length()
		case types.SubmitByIcon:
			m.Count = buttons.FilterFunction(func(_ int, b *goquery.Selection) bool {
				return hasIcon(b) && !excludedLabel(b, spec.ExcludeLabels)
			}).Length()
		case types.SubmitBySelector:
			m.Count = doc.Find(rule.Selector).FilterFunction(func(_ int, el *goquery.Selection) bool {
				return usable(el)
			}).Length()
		case types.SubmitNearInput:
			if d.FirstInput != "" {
				input := doc.Find(d.FirstInput).First()
				box := input.Closest(`form, [role="form"], div[class*="input"], div[class*="search"], div[class*="query"]`)
				if box.Length() == 0 {
					box = input.Parent()
				}
				m.Count = box.Find("button").FilterFunction(func(_ int, b *goquery.Selection) bool {
					return usable(b) && hasIcon(b) && !excludedLabel(b, spec.ExcludeLabels)
				}).Length()
			}
		}
		d.Submit = append(d.Submit, m)
	}

	d.FileInputs = doc.Find(`input[type="file"]`).Length()
	open := DefaultOpenSelectors
	if spec.Attach != nil && len(spec.Attach.OpenSelectors) > 0 {
		open = spec.Attach.OpenSelectors
	}
	for _, sel := range open {
		d.OpenControls += doc.Find(sel).FilterFunction(func(_ int, el *goquery.Selection) bool {
			return usable(el)
		}).Length()
	}
	return d, nil
}

// Ready reports whether an input and a submit control were both found.
func (d *Diagnosis) Ready() bool {
	if d.FirstInput == "" {
		return false
	}
	for _, m := range d.Submit {
		if m.Count > 0 {
			return true
		}
	}
	return false
}

func usable(el *goquery.Selection) bool {
	if hasAttr(el, "disabled") || hasAttr(el, "hidden") {
		return false
	}
	style, _ := el.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

func hasAttr(el *goquery.Selection, name string) bool {
	_, ok := el.Attr(name)
	return ok
}

func hasIcon(b *goquery.Selection) bool {
	return b.Find("svg").Length() > 0
}

func mentionsSend(b *goquery.Selection, attr string) bool {
	v, _ := b.Attr(attr)
	v = strings.ToLower(v)
	return strings.Contains(v, "send") || strings.Contains(v, "submit")
}

func excludedLabel(b *goquery.Selection, exclude []string) bool {
	label, _ := b.Attr("aria-label")
	title, _ := b.Attr("title")
	label, title = strings.ToLower(label), strings.ToLower(title)
	for _, w := range exclude {
		if strings.Contains(label, w) || strings.Contains(title, w) {
			return true
		}
	}
	return false
}
