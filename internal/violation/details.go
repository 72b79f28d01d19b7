package violation

// Details is the kind-specific context payload attached to a violation.
// Each violation kind has its own concrete type so downstream consumers
// (classifier, reporter, telemetry) stay exhaustively type-checked instead
// of passing untyped detail bags around.
type Details interface {
	violationDetails()
}

// TabSwitchDetails accompanies TabSwitch violations.
type TabSwitchDetails struct {
	// Count is the per-session tab switch number reported by the
	// visibility detector, starting at 1.
	Count int `json:"count"`
}

// FullscreenExitDetails accompanies FullscreenExit violations.
type FullscreenExitDetails struct {
	Count int `json:"count"`
}

// WindowBlurDetails accompanies WindowBlur violations.
type WindowBlurDetails struct{}

// ClipboardDetails accompanies ClipboardUse violations. Preview is the
// captured selection truncated to the configured bound before it enters
// any transport.
type ClipboardDetails struct {
	Action  string `json:"action"` // "copy" or "paste"
	Preview string `json:"preview,omitempty"`
}

// DevToolsDetails accompanies DevToolsOpen violations and records the
// viewport geometry that crossed the heuristic threshold.
type DevToolsDetails struct {
	WidthDelta  int `json:"widthDelta"`
	HeightDelta int `json:"heightDelta"`
}

func (TabSwitchDetails) violationDetails()      {}
func (FullscreenExitDetails) violationDetails() {}
func (WindowBlurDetails) violationDetails()     {}
func (ClipboardDetails) violationDetails()      {}
func (DevToolsDetails) violationDetails()       {}
