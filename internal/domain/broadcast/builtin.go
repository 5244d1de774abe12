package broadcast

import "github.com/GriffinCanCode/tabwall/internal/shared/types"

var (
	byLabel      = types.SubmitRule{Kind: types.SubmitByLabel}
	byTitle      = types.SubmitRule{Kind: types.SubmitByTitle}
	byType       = types.SubmitRule{Kind: types.SubmitByType}
	byIconInForm = types.SubmitRule{Kind: types.SubmitByIconInForm}
	byIcon       = types.SubmitRule{Kind: types.SubmitByIcon}
	nearInput    = types.SubmitRule{Kind: types.SubmitNearInput}
)

func bySelector(sel string) types.SubmitRule {
	return types.SubmitRule{Kind: types.SubmitBySelector, Selector: sel}
}

var visibleTextInputs = []string{`textarea`, `[contenteditable="true"]`, `[role="textbox"]`}

// BuiltinStrategies returns the stock records. Later entries in a panel
// file override these by site key.
func BuiltinStrategies() []types.StrategySpec {
	return []types.StrategySpec{
		{
			Site:           "chatgpt",
			Hosts:          []string{"chatgpt.com", "*.chatgpt.com", "chat.openai.com"},
			InputSelectors: []string{`#prompt-textarea`, `textarea`, `[contenteditable="true"]`},
			Submit:         []types.SubmitRule{bySelector(`button[data-testid="send-button"]`), byLabel},
		},
		{
			Site:           "gemini",
			Hosts:          []string{"gemini.google.com", "bard.google.com"},
			InputSelectors: []string{`.ql-editor[contenteditable="true"]`, `[contenteditable="true"]`, `textarea`},
			DeepQuery:      true,
			Submit: []types.SubmitRule{
				bySelector(`button[aria-label="Send message"]`),
				byLabel,
				bySelector(`.send-button, .send-button-container button`),
			},
			Attach: &types.AttachHints{SettleMs: 1500, MaxAttempts: 3, RetryDelayMs: 800, FinalRetryMs: 2000},
		},
		{
			Site:           "deepseek",
			Hosts:          []string{"chat.deepseek.com"},
			InputSelectors: []string{`#chat-input`, `textarea`, `[contenteditable="true"]`},
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, byType, byIconInForm},
		},
		{
			Site:           "claude",
			Hosts:          []string{"claude.ai"},
			InputSelectors: []string{`[contenteditable="true"]`},
			ValueKind:      types.ValueRichText,
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, nearInput},
		},
		{
			Site:           "perplexity",
			Hosts:          []string{"perplexity.ai", "www.perplexity.ai"},
			InputSelectors: []string{`textarea`, `[contenteditable]`, `[role="textbox"]`, `input:not([type="hidden"])`},
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, nearInput, byIcon, byType},
			EnterModifier:  "ctrl",
		},
		{
			Site:           "copilot",
			Hosts:          []string{"copilot.microsoft.com"},
			InputSelectors: visibleTextInputs,
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, byTitle, byType, byIconInForm},
		},
		{
			Site:           "mistral",
			Hosts:          []string{"chat.mistral.ai"},
			InputSelectors: visibleTextInputs,
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, byType, byIconInForm},
		},
		{
			Site:           GenericSite,
			InputSelectors: append(append([]string(nil), visibleTextInputs...), `input:not([type="hidden"]):not([type="file"])`),
			FireChange:     true,
			Submit:         []types.SubmitRule{byLabel, byTitle, byType, byIconInForm},
		},
	}
}
