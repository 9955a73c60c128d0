package suspicion

import (
	"strings"

	"github.com/shortontech/goprint/internal/signals"
)

// Rule is one heuristic. Detect must be a pure function of its inputs.
type Rule struct {
	ID          string
	Severity    int
	Category    Category
	Description string
	Detect      func(v View, t *Tables) bool
}

// DefaultRules returns the built-in battery in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		// automation
		{"webdriver", 9, CategoryAutomation, "navigator.webdriver is set", detectWebdriver},
		{"automation_globals", 8, CategoryAutomation, "automation framework globals present", detectAutomationGlobals},
		{"headless", 8, CategoryAutomation, "user agent reports a headless browser", detectHeadless},
		{"automation_tool_user_agent", 7, CategoryAutomation, "user agent names an automation tool", detectAutomationToolUA},
		{"zero_window_dimensions", 6, CategoryAutomation, "outer window has zero width or height", detectZeroWindow},
		{"missing_browser_globals", 5, CategoryAutomation, "Chrome user agent without window.chrome", detectMissingChromeGlobal},
		{"automation_headers", 6, CategoryAutomation, "request carries automation headers", detectAutomationHeaders},

		// inconsistency
		{"timezone_language_mismatch", 4, CategoryInconsistency, "language implausible for the reported timezone", detectTimezoneLanguageMismatch},
		{"emulator_resolution", 3, CategoryInconsistency, "screen matches a known emulator or virtual display", detectEmulatorResolution},
		{"generic_canvas", 5, CategoryInconsistency, "canvas output is blank or generic", detectGenericCanvas},
		{"platform_mismatch", 6, CategoryInconsistency, "platform disagrees with user agent OS", detectPlatformMismatch},
		{"implausible_hardware", 5, CategoryInconsistency, "hardware values outside plausible ranges", detectImplausibleHardware},

		// environment
		{"missing_apis", 4, CategoryEnvironment, "several expected browser APIs unavailable", detectMissingAPIs},
		{"collection_errors", 5, CategoryEnvironment, "many signals failed to collect", detectCollectionErrors},
		{"bot_user_agent", 7, CategoryEnvironment, "user agent is a scripted HTTP client", detectScriptClientUA},
		{"touch_mobile_mismatch", 4, CategoryEnvironment, "mobile user agent without touch support", detectTouchMobileMismatch},
		{"missing_request_headers", 3, CategoryEnvironment, "request lacks standard browser headers", detectMissingRequestHeaders},

		// bot-pattern
		{"too_perfect", 3, CategoryBotPattern, "every signal present with no defaults or errors", detectTooPerfect},
		{"crawler_user_agent", 8, CategoryBotPattern, "user agent is a known crawler", detectCrawlerUA},
		{"software_renderer", 6, CategoryBotPattern, "WebGL backed by a software renderer", detectSoftwareRenderer},
		{"machine_timing", 4, CategoryBotPattern, "request interval aligned to machine precision", detectMachineTiming},

		// privacy-tooling
		{"canvas_blocking", 5, CategoryPrivacyTooling, "canvas output truncated by a blocker", detectCanvasBlocking},
		{"patched_accessors", 6, CategoryPrivacyTooling, "native accessors have been overridden", detectPatchedAccessors},
		{"accessor_probe_errors", 5, CategoryPrivacyTooling, "probing native accessors threw", detectAccessorProbeErrors},
		{"audio_anomaly", 4, CategoryPrivacyTooling, "audio context reports non-standard values", detectAudioAnomaly},
	}
}

func detectWebdriver(v View, _ *Tables) bool {
	wd, ok := v.FieldBool(signals.Automation, "webdriver")
	return ok && wd
}

func detectAutomationGlobals(v View, t *Tables) bool {
	globals := v.FieldStrings(signals.Automation, "globals")
	if len(globals) == 0 {
		return false
	}
	known := make(map[string]struct{}, len(t.AutomationGlobals))
	for _, g := range t.AutomationGlobals {
		known[g] = struct{}{}
	}
	for _, g := range globals {
		if _, ok := known[g]; ok {
			return true
		}
	}
	return false
}

func detectHeadless(v View, t *Tables) bool {
	return containsAny(v.UserAgent(), t.HeadlessMarkers)
}

func detectAutomationToolUA(v View, t *Tables) bool {
	return containsAny(v.UserAgent(), t.AutomationToolMarkers)
}

func detectZeroWindow(v View, _ *Tables) bool {
	w, wok := v.FieldNumber(signals.Window, "outerWidth")
	h, hok := v.FieldNumber(signals.Window, "outerHeight")
	return (wok && w == 0) || (hok && h == 0)
}

func detectMissingChromeGlobal(v View, _ *Tables) bool {
	ua := v.UserAgent()
	if !strings.Contains(ua, "Chrome/") {
		return false
	}
	chrome, ok := v.FieldBool(signals.Window, "chrome")
	return ok && !chrome
}

func detectAutomationHeaders(v View, _ *Tables) bool {
	return len(v.FieldStrings(signals.HTTPHeaders, "automationHeaders")) > 0
}

func detectTimezoneLanguageMismatch(v View, t *Tables) bool {
	tz, ok := v.FieldString(signals.Timezone, "timezone")
	if !ok {
		return false
	}
	plausible, listed := t.TimezoneLanguages[tz]
	if !listed {
		return false
	}
	lang, ok := v.FieldString(signals.Languages, "language")
	if !ok || lang == "" {
		return false
	}
	primary := strings.ToLower(strings.SplitN(strings.ReplaceAll(lang, "_", "-"), "-", 2)[0])
	for _, p := range plausible {
		if strings.EqualFold(p, primary) {
			return false
		}
	}
	return true
}

func detectEmulatorResolution(v View, t *Tables) bool {
	w, wok := v.FieldNumber(signals.Screen, "width")
	h, hok := v.FieldNumber(signals.Screen, "height")
	if !wok || !hok {
		return false
	}
	depth, _ := v.FieldNumber(signals.Screen, "colorDepth")
	for _, r := range t.EmulatorResolutions {
		if int(w) != r.Width || int(h) != r.Height {
			continue
		}
		if r.ColorDepth == 0 || int(depth) == r.ColorDepth {
			return true
		}
	}
	return false
}

func detectGenericCanvas(v View, t *Tables) bool {
	data, ok := v.FieldString(signals.Canvas, "data")
	return ok && isGenericCanvas(data, t)
}

func isGenericCanvas(data string, t *Tables) bool {
	for _, g := range t.GenericCanvas {
		if data == g {
			return true
		}
	}
	return false
}

func detectPlatformMismatch(v View, _ *Tables) bool {
	platform, ok := v.String(signals.Platform)
	if !ok {
		return false
	}
	pf := platformFamily(platform)
	uf := uaFamily(v.UserAgent())
	if pf == "" || uf == "" || pf == uf {
		return false
	}
	// Android and ChromeOS both report a Linux platform string.
	if pf == "linux" && (uf == "android" || uf == "chromeos") {
		return false
	}
	// iPadOS in desktop mode reports MacIntel.
	if pf == "mac" && uf == "ios" {
		return false
	}
	return true
}

func platformFamily(p string) string {
	lp := strings.ToLower(p)
	switch {
	case strings.HasPrefix(lp, "win"):
		return "windows"
	case strings.HasPrefix(lp, "mac"):
		return "mac"
	case strings.HasPrefix(lp, "iphone"), strings.HasPrefix(lp, "ipad"), strings.HasPrefix(lp, "ipod"):
		return "ios"
	case strings.Contains(lp, "android"):
		return "android"
	case strings.HasPrefix(lp, "linux"), strings.Contains(lp, "x11"):
		return "linux"
	}
	return ""
}

func uaFamily(ua string) string {
	switch {
	case ua == "":
		return ""
	case strings.Contains(ua, "Windows"):
		return "windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		return "ios"
	case strings.Contains(ua, "Android"):
		return "android"
	case strings.Contains(ua, "CrOS"):
		return "chromeos"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		return "mac"
	case strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		return "linux"
	}
	return ""
}

func detectImplausibleHardware(v View, t *Tables) bool {
	if cores, ok := v.FieldNumber(signals.Hardware, "hardwareConcurrency"); ok {
		if cores <= 0 || cores > float64(t.MaxCores) {
			return true
		}
	}
	if mem, ok := v.FieldNumber(signals.Hardware, "deviceMemory"); ok && mem < t.MinDeviceMemoryGB {
		return true
	}
	return false
}

func detectMissingAPIs(v View, t *Tables) bool {
	missing := 0
	for _, name := range t.ExpectedSignals {
		if v.Missing(name) {
			missing++
		}
	}
	return missing > 1
}

func detectCollectionErrors(v View, t *Tables) bool {
	return v.ErrorCount() > t.MaxErrorMarkers
}

func detectScriptClientUA(v View, t *Tables) bool {
	return containsAny(v.UserAgent(), t.ScriptClientMarkers)
}

func detectTouchMobileMismatch(v View, _ *Tables) bool {
	ua := v.UserAgent()
	if !(strings.Contains(ua, "Mobile") || strings.Contains(ua, "Android") ||
		strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad")) {
		return false
	}
	points, ok := v.FieldNumber(signals.TouchSupport, "maxTouchPoints")
	return ok && points == 0
}

func detectMissingRequestHeaders(v View, t *Tables) bool {
	return len(v.FieldStrings(signals.HTTPHeaders, "missingExpected")) >= t.MinMissingHeaders
}

// detectTooPerfect fires when a large set has no error markers and no value
// at its type's default: real browsers almost always lose a few APIs.
func detectTooPerfect(v View, t *Tables) bool {
	entries := v.Entries()
	if len(entries) < t.MinSignalsForPerfect {
		return false
	}
	for _, e := range entries {
		if e.Value.IsError() || isDefault(e.Value.Data()) {
			return false
		}
	}
	return true
}

func isDefault(x any) bool {
	switch val := x.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	if n, ok := number(x); ok {
		return n == 0
	}
	return false
}

func detectCrawlerUA(v View, t *Tables) bool {
	return containsAny(v.UserAgent(), t.CrawlerMarkers)
}

func detectSoftwareRenderer(v View, t *Tables) bool {
	vendor, _ := v.FieldString(signals.WebGL, "vendor")
	renderer, _ := v.FieldString(signals.WebGL, "renderer")
	return containsAny(vendor, t.SoftwareRenderers) || containsAny(renderer, t.SoftwareRenderers)
}

func detectMachineTiming(v View, t *Tables) bool {
	if prev, ok := v.FieldBool(signals.RequestTiming, "hasPrevious"); !ok || !prev {
		return false
	}
	precision, ok := v.FieldNumber(signals.RequestTiming, "intervalPrecision")
	return ok && precision >= t.MachinePrecisionMS
}

func detectCanvasBlocking(v View, t *Tables) bool {
	data, ok := v.FieldString(signals.Canvas, "data")
	if !ok || isGenericCanvas(data, t) {
		return false
	}
	return len(data) < t.MinCanvasLength
}

func detectPatchedAccessors(v View, t *Tables) bool {
	f, ok := v.Field(signals.Integrity, "accessors")
	if !ok {
		return false
	}
	accessors, ok := f.(map[string]any)
	if !ok {
		return false
	}
	for _, raw := range accessors {
		src, ok := raw.(string)
		if !ok {
			continue
		}
		if !strings.Contains(src, "[native code]") || containsAny(src, t.PatchPatterns) {
			return true
		}
	}
	return false
}

func detectAccessorProbeErrors(v View, _ *Tables) bool {
	return len(v.FieldStrings(signals.Integrity, "probeErrors")) > 0
}

func detectAudioAnomaly(v View, t *Tables) bool {
	if rate, ok := v.FieldNumber(signals.Audio, "sampleRate"); ok {
		standard := false
		for _, r := range t.StandardSampleRates {
			if rate == r {
				standard = true
				break
			}
		}
		if !standard {
			return true
		}
	}
	if ch, ok := v.FieldNumber(signals.Audio, "channelCount"); ok && (ch < 1 || ch > 32) {
		return true
	}
	return false
}
