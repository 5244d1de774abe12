package types

// Value assignment kinds
const (
	ValueAuto     = "auto"
	ValuePlain    = "plain"
	ValueRichText = "richtext"
)

// Submit rule kinds, tried in the order a strategy lists them
const (
	SubmitByLabel      = "label"        // aria-label mentions send/submit
	SubmitByTitle      = "title"        // title attribute mentions send/submit
	SubmitByType       = "submit"       // type="submit"
	SubmitByIconInForm = "icon-in-form" // svg button inside a form context
	SubmitByIcon       = "icon"         // any svg button not excluded by label
	SubmitBySelector   = "selector"     // explicit CSS selector
	SubmitNearInput    = "near-input"   // svg button sharing a container with the input
)

// SubmitRule is one submit heuristic
type SubmitRule struct {
	Kind     string `json:"kind" yaml:"kind" toml:"kind"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty" toml:"selector,omitempty"`
}

// AttachHints describe how a site reveals its file input and which files
// it takes. Zero values fall back to the host defaults. Accept lists MIME
// types ("application/pdf") or families ("image/*"); empty accepts any
// file.
type AttachHints struct {
	OpenSelectors []string `json:"openSelectors,omitempty" yaml:"openSelectors,omitempty" toml:"openSelectors,omitempty"`
	Accept        []string `json:"accept,omitempty" yaml:"accept,omitempty" toml:"accept,omitempty"`
	SettleMs      int      `json:"settleMs,omitempty" yaml:"settleMs,omitempty" toml:"settleMs,omitempty"`
	MaxAttempts   int      `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty" toml:"maxAttempts,omitempty"`
	RetryDelayMs  int      `json:"retryDelayMs,omitempty" yaml:"retryDelayMs,omitempty" toml:"retryDelayMs,omitempty"`
	FinalRetryMs  int      `json:"finalRetryMs,omitempty" yaml:"finalRetryMs,omitempty" toml:"finalRetryMs,omitempty"`
}

// StrategySpec is the declarative interaction record for one site.
type StrategySpec struct {
	Site           string       `json:"site" yaml:"site" toml:"site"`
	Hosts          []string     `json:"hosts,omitempty" yaml:"hosts,omitempty" toml:"hosts,omitempty"`
	InputSelectors []string     `json:"inputSelectors" yaml:"inputSelectors" toml:"inputSelectors"`
	ValueKind      string       `json:"valueKind,omitempty" yaml:"valueKind,omitempty" toml:"valueKind,omitempty"`
	DeepQuery      bool         `json:"deepQuery,omitempty" yaml:"deepQuery,omitempty" toml:"deepQuery,omitempty"`
	FireChange     bool         `json:"fireChange,omitempty" yaml:"fireChange,omitempty" toml:"fireChange,omitempty"`
	Submit         []SubmitRule `json:"submit,omitempty" yaml:"submit,omitempty" toml:"submit,omitempty"`
	ExcludeLabels  []string     `json:"excludeLabels,omitempty" yaml:"excludeLabels,omitempty" toml:"excludeLabels,omitempty"`
	EnterModifier  string       `json:"enterModifier,omitempty" yaml:"enterModifier,omitempty" toml:"enterModifier,omitempty"`
	Attach         *AttachHints `json:"attach,omitempty" yaml:"attach,omitempty" toml:"attach,omitempty"`
}
