package suspicion

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shortontech/goprint/internal/signals"
)

// Resolution is a screen shape. A zero ColorDepth matches any depth.
type Resolution struct {
	Width      int `yaml:"width" json:"width"`
	Height     int `yaml:"height" json:"height"`
	ColorDepth int `yaml:"color_depth" json:"color_depth"`
}

// Tables is the plain data the rules consult. Engines hold a pointer to an
// immutable Tables value; replace it, never edit it in place.
type Tables struct {
	AutomationGlobals     []string `yaml:"automation_globals"`
	HeadlessMarkers       []string `yaml:"headless_markers"`
	AutomationToolMarkers []string `yaml:"automation_tool_markers"`
	ScriptClientMarkers   []string `yaml:"script_client_markers"`
	CrawlerMarkers        []string `yaml:"crawler_markers"`
	SoftwareRenderers     []string `yaml:"software_renderers"`
	PatchPatterns         []string `yaml:"patch_patterns"`
	GenericCanvas         []string `yaml:"generic_canvas"`

	// TimezoneLanguages maps a timezone to the primary language subtags
	// plausible there. Timezones not listed are never flagged.
	TimezoneLanguages   map[string][]string `yaml:"timezone_languages"`
	EmulatorResolutions []Resolution        `yaml:"emulator_resolutions"`
	StandardSampleRates []float64           `yaml:"standard_sample_rates"`
	ExpectedSignals     []signals.Name      `yaml:"expected_signals"`

	MaxCores             int     `yaml:"max_cores"`
	MinDeviceMemoryGB    float64 `yaml:"min_device_memory_gb"`
	MaxErrorMarkers      int     `yaml:"max_error_markers"`
	MinSignalsForPerfect int     `yaml:"min_signals_for_perfect"`
	MinCanvasLength      int     `yaml:"min_canvas_length"`
	MinMissingHeaders    int     `yaml:"min_missing_headers"`
	MachinePrecisionMS   float64 `yaml:"machine_precision_ms"`
}

// DefaultTables returns a fresh copy of the built-in tables.
func DefaultTables() *Tables {
	return &Tables{
		AutomationGlobals: []string{
			"__webdriver_evaluate", "__selenium_evaluate", "__webdriver_script_function",
			"__webdriver_script_func", "__webdriver_script_fn", "__fxdriver_evaluate",
			"__driver_unwrapped", "__webdriver_unwrapped", "__driver_evaluate",
			"__selenium_unwrapped", "__fxdriver_unwrapped", "_Selenium_IDE_Recorder",
			"_selenium", "calledSelenium", "$cdc_asdjflasutopfhvcZLmcfl_",
			"$chrome_asyncScriptInfo", "__$webdriverAsyncExecutor",
			"domAutomation", "domAutomationController",
			"_phantom", "callPhantom", "__nightmare",
			"__playwright", "__pwInitScripts", "__puppeteer_evaluation_script__",
		},
		HeadlessMarkers: []string{"HeadlessChrome", "Headless"},
		AutomationToolMarkers: []string{
			"PhantomJS", "Selenium", "WebDriver", "Puppeteer", "Playwright",
			"SlimerJS", "Nightmare", "HtmlUnit",
		},
		ScriptClientMarkers: []string{
			"curl/", "Wget/", "python-requests", "Python-urllib", "aiohttp",
			"Go-http-client", "Java/", "okhttp", "axios/", "node-fetch",
			"libwww-perl", "HTTPie", "Apache-HttpClient", "Scrapy",
		},
		CrawlerMarkers: []string{
			"Googlebot", "bingbot", "Slurp", "DuckDuckBot", "Baiduspider",
			"YandexBot", "facebookexternalhit", "Twitterbot", "LinkedInBot",
			"AhrefsBot", "SemrushBot", "MJ12bot", "DotBot", "PetalBot",
			"GPTBot", "CCBot", "Bytespider", "crawler", "spider",
		},
		SoftwareRenderers: []string{
			"SwiftShader", "llvmpipe", "softpipe", "Mesa OffScreen",
			"Microsoft Basic Render Driver", "VMware SVGA", "VirtualBox",
		},
		PatchPatterns: []string{"Proxy", "Reflect.", "defineProperty", "=>"},
		GenericCanvas: []string{"", "data:,"},
		TimezoneLanguages: map[string][]string{
			"Asia/Shanghai":     {"zh", "en"},
			"Asia/Tokyo":        {"ja", "en"},
			"Asia/Seoul":        {"ko", "en"},
			"Europe/Moscow":     {"ru", "en"},
			"Europe/Berlin":     {"de", "en"},
			"Europe/Paris":      {"fr", "en"},
			"Europe/Madrid":     {"es", "ca", "eu", "gl", "en"},
			"Europe/Rome":       {"it", "en"},
			"America/Sao_Paulo": {"pt", "es", "en"},
		},
		EmulatorResolutions: []Resolution{
			{Width: 800, Height: 600, ColorDepth: 24},
			{Width: 1024, Height: 768, ColorDepth: 24},
			{Width: 1280, Height: 1024, ColorDepth: 8},
			{Width: 0, Height: 0},
		},
		StandardSampleRates: []float64{8000, 16000, 22050, 24000, 32000, 44100, 48000, 88200, 96000, 176400, 192000},
		ExpectedSignals: []signals.Name{
			signals.UserAgent, signals.Platform, signals.Languages, signals.Timezone,
			signals.Screen, signals.Hardware, signals.Canvas, signals.WebGL, signals.Fonts,
		},
		MaxCores:             128,
		MinDeviceMemoryGB:    0.25,
		MaxErrorMarkers:      3,
		MinSignalsForPerfect: 10,
		MinCanvasLength:      64,
		MinMissingHeaders:    2,
		MachinePrecisionMS:   100,
	}
}

// LoadTables reads a YAML file and overlays it on DefaultTables. Lists in
// the file replace the defaults; timezone_languages entries are merged.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	t := DefaultTables()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects thresholds that would make rules fire on every input.
func (t *Tables) Validate() error {
	var errs []error
	if t.MaxCores <= 0 {
		errs = append(errs, errors.New("max_cores must be positive"))
	}
	if t.MinDeviceMemoryGB < 0 {
		errs = append(errs, errors.New("min_device_memory_gb must not be negative"))
	}
	if t.MaxErrorMarkers < 0 {
		errs = append(errs, errors.New("max_error_markers must not be negative"))
	}
	if t.MinSignalsForPerfect <= 0 {
		errs = append(errs, errors.New("min_signals_for_perfect must be positive"))
	}
	if t.MinMissingHeaders <= 0 {
		errs = append(errs, errors.New("min_missing_headers must be positive"))
	}
	if t.MachinePrecisionMS <= 0 {
		errs = append(errs, errors.New("machine_precision_ms must be positive"))
	}
	return errors.Join(errs...)
}
