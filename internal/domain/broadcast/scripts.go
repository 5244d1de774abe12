package broadcast

import (
	"strings"
	"text/template"
)

// Script results shared by the generated scripts.
const (
	resultOK            = "OK"
	resultInputNotFound = "INPUT_NOT_FOUND"
	resultClicked       = "CLICKED"
	resultEnter         = "ENTER"
	resultNoAction      = "NO_ACTION"
	resultNoButton      = "NO_BUTTON"
	resultErrorPrefix   = "ERROR:"
)

// Every script is an IIFE that catches its own exceptions and reports
// them as "ERROR:<message>", so a page fault never surfaces as a protocol
// error.
const scriptSource = `
{{define "helpers"}}
    var deep = {{.Deep}};
    function queryAll(sel, root) {
      root = root || document;
      var out = Array.prototype.slice.call(root.querySelectorAll(sel));
      if (!deep) return out;
      var all = root.querySelectorAll('*');
      for (var i = 0; i < all.length; i++) {
        if (all[i].shadowRoot) out = out.concat(queryAll(sel, all[i].shadowRoot));
      }
      return out;
    }
    function visible(el) {
      var r = el.getBoundingClientRect();
      return r.width > 0 && r.height > 0;
    }
    function usable(el) {
      return !!el && !el.disabled && !el.readOnly && visible(el);
    }
    function findInput(selectors) {
      for (var i = 0; i < selectors.length; i++) {
        var list = queryAll(selectors[i]);
        for (var j = 0; j < list.length; j++) {
          if (usable(list[j])) return list[j];
        }
      }
      return null;
    }
    function fire(el, type) {
      el.dispatchEvent(new Event(type, { bubbles: true, composed: true }));
    }
{{end}}

{{define "fill"}}(function() {
  try {
{{template "helpers" .}}
    var prompt = {{.Prompt}};
    var el = findInput({{.Inputs}});
    if (!el) return 'INPUT_NOT_FOUND';
    el.focus();
    var tag = el.tagName;
    var plain = tag === 'TEXTAREA' || tag === 'INPUT';
    if ({{.ValueKind}} === 'richtext') plain = false;
    if (plain) {
      var proto = tag === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
      var desc = Object.getOwnPropertyDescriptor(proto, 'value');
      if (desc && desc.set) desc.set.call(el, prompt);
      else el.value = prompt;
    } else {
      var sel = window.getSelection();
      var range = document.createRange();
      range.selectNodeContents(el);
      sel.removeAllRanges();
      sel.addRange(range);
      document.execCommand('insertText', false, prompt);
    }
    fire(el, 'input');
    if ({{.FireChange}}) fire(el, 'change');
    return 'OK';
  } catch (e) {
    return 'ERROR:' + (e && e.message ? e.message : String(e));
  }
})(){{end}}

{{define "submit"}}(function() {
  try {
{{template "helpers" .}}
    var rules = {{.Rules}};
    var exclude = {{.Exclude}};
    var modifier = {{.Modifier}};
    var input = findInput({{.Inputs}});
    function attr(b, name) {
      return (b.getAttribute(name) || '').toLowerCase();
    }
    function mentions(b, name) {
      var v = attr(b, name);
      return v.indexOf('send') >= 0 || v.indexOf('submit') >= 0;
    }
    function excluded(b) {
      var a = attr(b, 'aria-label');
      var t = attr(b, 'title');
      for (var i = 0; i < exclude.length; i++) {
        if (a.indexOf(exclude[i]) >= 0 || t.indexOf(exclude[i]) >= 0) return true;
      }
      return false;
    }
    function hasIcon(b) {
      return b.querySelector('svg') !== null;
    }
    function inForm(b) {
      return b.closest('form') !== null || b.closest('[role="form"]') !== null;
    }
    function candidates(rule) {
      switch (rule.kind) {
      case 'label':
        return queryAll('button').filter(function(b) { return mentions(b, 'aria-label') && !excluded(b); });
      case 'title':
        return queryAll('button').filter(function(b) { return mentions(b, 'title') && !excluded(b); });
      case 'submit':
        return queryAll('button[type="submit"]');
      case 'icon-in-form':
        return queryAll('button').filter(function(b) { return hasIcon(b) && inForm(b) && !excluded(b); });
      case 'icon':
        return queryAll('button').filter(function(b) { return hasIcon(b) && !excluded(b); });
      case 'selector':
        return queryAll(rule.selector);
      case 'near-input':
        if (!input) return [];
        var box = input.closest('form, [role="form"], div[class*="input"], div[class*="search"], div[class*="query"]') || input.parentElement;
        if (!box) return [];
        return Array.prototype.slice.call(box.querySelectorAll('button')).filter(function(b) { return hasIcon(b) && !excluded(b); });
      }
      return [];
    }
    for (var i = 0; i < rules.length; i++) {
      var list = candidates(rules[i]);
      for (var j = 0; j < list.length; j++) {
        if (!list[j].disabled && visible(list[j])) {
          list[j].click();
          return 'CLICKED';
        }
      }
    }
    if (!input) return 'NO_ACTION';
    var press = function(mod) {
      var types = ['keydown', 'keypress', 'keyup'];
      for (var k = 0; k < types.length; k++) {
        var init = { key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true, composed: true, cancelable: true };
        if (mod) init[mod + 'Key'] = true;
        input.dispatchEvent(new KeyboardEvent(types[k], init));
      }
    };
    if (modifier) {
      press(modifier);
      setTimeout(function() { press(''); }, 100);
    } else {
      press('');
    }
    return 'ENTER';
  } catch (e) {
    return 'ERROR:' + (e && e.message ? e.message : String(e));
  }
})(){{end}}

{{define "open"}}(function() {
  try {
{{template "helpers" .}}
    var selectors = {{.Open}};
    for (var i = 0; i < selectors.length; i++) {
      var list = queryAll(selectors[i]);
      for (var j = 0; j < list.length; j++) {
        if (!list[j].disabled && visible(list[j])) {
          list[j].click();
          return 'CLICKED';
        }
      }
    }
    var words = ['file', 'image', 'upload', 'attach'];
    var buttons = queryAll('button');
    for (var b = 0; b < buttons.length; b++) {
      var btn = buttons[b];
      if (btn.disabled || !visible(btn) || btn.querySelector('svg') === null) continue;
      var label = ((btn.getAttribute('aria-label') || '') + ' ' + (btn.getAttribute('title') || '')).toLowerCase();
      for (var w = 0; w < words.length; w++) {
        if (label.indexOf(words[w]) >= 0) {
          btn.click();
          return 'CLICKED';
        }
      }
    }
    return 'NO_BUTTON';
  } catch (e) {
    return 'ERROR:' + (e && e.message ? e.message : String(e));
  }
})(){{end}}
`

var scripts = template.Must(template.New("scripts").Parse(scriptSource))

// scriptData carries JSON literals into the templates.
type scriptData struct {
	Prompt     string
	Inputs     string
	Deep       bool
	ValueKind  string
	FireChange bool
	Rules      string
	Exclude    string
	Modifier   string
	Open       string
}

func render(name string, data scriptData) (string, error) {
	var b strings.Builder
	if err := scripts.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
