package signals

// Well-known signal names. Client names are posted by the browser collector;
// request names are derived server-side from the HTTP request.
const (
	UserAgent    Name = "userAgent"
	Platform     Name = "platform"
	Languages    Name = "languages"
	Timezone     Name = "timezone"
	Screen       Name = "screen"
	Hardware     Name = "hardware"
	Canvas       Name = "canvas"
	WebGL        Name = "webgl"
	Audio        Name = "audio"
	Fonts        Name = "fonts"
	Plugins      Name = "plugins"
	TouchSupport Name = "touchSupport"
	Window       Name = "window"
	Automation   Name = "automation"
	Integrity    Name = "integrity"
	Battery      Name = "battery"
	Network      Name = "network"
	Permissions  Name = "permissions"

	HTTPHeaders    Name = "httpHeaders"
	AcceptLanguage Name = "acceptLanguage"
	ClientIP       Name = "clientIP"
	RequestTiming  Name = "requestTiming"
)

// ClientNames lists the browser-reported signals in serialization order.
var ClientNames = []Name{
	UserAgent, Platform, Languages, Timezone, Screen, Hardware,
	Canvas, WebGL, Audio, Fonts, Plugins, TouchSupport,
	Window, Automation, Integrity, Battery, Network, Permissions,
}

// RequestNames lists the server-derived signals in serialization order.
var RequestNames = []Name{HTTPHeaders, AcceptLanguage, ClientIP, RequestTiming}

// DefaultMetadata holds the design-time weight, entropy and stability of
// every well-known signal. Audio is unstable because first-run jitter changes
// its fingerprint.
var DefaultMetadata = map[Name]Metadata{
	UserAgent:    {Weight: 1.0, Entropy: 10.0, Stable: true, Category: CategoryBrowser},
	Platform:     {Weight: 0.5, Entropy: 2.0, Stable: true, Category: CategoryBrowser},
	Languages:    {Weight: 0.8, Entropy: 5.0, Stable: true, Category: CategoryLocale},
	Timezone:     {Weight: 0.8, Entropy: 3.5, Stable: true, Category: CategoryLocale},
	Screen:       {Weight: 1.0, Entropy: 4.8, Stable: true, Category: CategoryHardware},
	Hardware:     {Weight: 0.8, Entropy: 3.0, Stable: true, Category: CategoryHardware},
	Canvas:       {Weight: 2.0, Entropy: 8.0, Stable: true, Category: CategoryRendering},
	WebGL:        {Weight: 2.0, Entropy: 7.5, Stable: true, Category: CategoryRendering},
	Audio:        {Weight: 1.0, Entropy: 5.5, Stable: false, Category: CategoryMedia},
	Fonts:        {Weight: 1.5, Entropy: 7.0, Stable: true, Category: CategoryRendering},
	Plugins:      {Weight: 0.8, Entropy: 4.0, Stable: true, Category: CategoryBrowser},
	TouchSupport: {Weight: 0.5, Entropy: 1.5, Stable: true, Category: CategoryHardware},
	Window:       {Weight: 0.5, Entropy: 1.0, Stable: true, Category: CategoryBrowser},
	Automation:   {Weight: 0.5, Entropy: 0.5, Stable: true, Category: CategoryIntegrity},
	Integrity:    {Weight: 0.5, Entropy: 0.5, Stable: true, Category: CategoryIntegrity},
	Battery:      {Weight: 0.2, Entropy: 1.0, Stable: false, Category: CategoryHardware},
	Network:      {Weight: 0.2, Entropy: 1.0, Stable: false, Category: CategoryNetwork},
	Permissions:  {Weight: 0.2, Entropy: 1.5, Stable: false, Category: CategoryBrowser},

	HTTPHeaders:    {Weight: 1.0, Entropy: 4.0, Stable: true, Category: CategoryRequest},
	AcceptLanguage: {Weight: 0.5, Entropy: 2.5, Stable: true, Category: CategoryLocale},
	ClientIP:       {Weight: 0.3, Entropy: 2.0, Stable: false, Category: CategoryNetwork},
	RequestTiming:  {Weight: 0.1, Entropy: 0.0, Stable: false, Category: CategoryRequest},
}

// MetadataFor returns the catalogue entry for name.
func MetadataFor(name Name) (Metadata, bool) {
	m, ok := DefaultMetadata[name]
	return m, ok
}
