package config

import (
	"os"
	"reflect"
	"testing"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_STR", "from_env")
	t.Setenv("CFG_YES", "Yes")
	t.Setenv("CFG_OFF", " off ")
	t.Setenv("CFG_ZERO", "0")
	t.Setenv("CFG_INT", "250")
	t.Setenv("CFG_BADINT", "12ms")
	t.Setenv("CFG_LIST", " audio ,, battery ,")

	t.Run("getOr", func(t *testing.T) {
		if got := getOr("CFG_STR", "def"); got != "from_env" {
			t.Errorf("getOr() = %q, want from_env", got)
		}
		if got := getOr("CFG_UNSET", "def"); got != "def" {
			t.Errorf("getOr() = %q, want def", got)
		}
	})

	t.Run("getBool", func(t *testing.T) {
		tests := []struct {
			key  string
			def  bool
			want bool
		}{
			{"CFG_YES", false, true},
			{"CFG_ZERO", true, false},
			{"CFG_OFF", true, true}, // unrecognised keeps the default
			{"CFG_UNSET", true, true},
		}
		for _, tt := range tests {
			if got := getBool(tt.key, tt.def); got != tt.want {
				t.Errorf("getBool(%s, %v) = %v, want %v", tt.key, tt.def, got, tt.want)
			}
		}
	})

	t.Run("getInt64", func(t *testing.T) {
		if got := getInt64("CFG_INT", 5000); got != 250 {
			t.Errorf("getInt64() = %d, want 250", got)
		}
		if got := getInt64("CFG_BADINT", 5000); got != 5000 {
			t.Errorf("getInt64() on bad input = %d, want default", got)
		}
	})

	t.Run("getStringSlice", func(t *testing.T) {
		tests := []struct {
			key, def string
			want     []string
		}{
			{"CFG_LIST", "", []string{"audio", "battery"}},
			{"CFG_UNSET", "log,kafka", []string{"log", "kafka"}},
			{"CFG_UNSET", "", nil},
		}
		for _, tt := range tests {
			if got := getStringSlice(tt.key, tt.def); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("getStringSlice(%s, %q) = %v, want %v", tt.key, tt.def, got, tt.want)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	// Save current env
	oldEnv := make(map[string]string)
	envVars := []string{
		"SERVER_ADDR", "TRUST_PROXY", "DNT_RESPECT", "MAX_BODY_BYTES",
		"IP_HASH_SECRET", "OUTPUTS", "TEST_MODE", "ENABLE_HTTPS",
		"TLS_CERT", "TLS_KEY", "HMAC_SECRET", "REQUIRE_HMAC", "HMAC_PUBLIC_KEY",
		"FP_TIMEOUT_MS", "FP_ALLOW_UNSTABLE", "FP_SUSPICION", "FP_SEQUENTIAL",
		"FP_STABLE_ONLY", "FP_EXCLUDE", "FP_RULES_PATH", "TIMING_BACKEND",
		"TIMING_TTL_SECONDS",
	}
	for _, key := range envVars {
		oldEnv[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, val := range oldEnv {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}()

	t.Run("loads defaults when no env vars set", func(t *testing.T) {
		cfg := Load()

		if cfg.ServerAddr != ":19890" {
			t.Errorf("ServerAddr = %v, want :19890", cfg.ServerAddr)
		}
		if cfg.TrustProxy != false {
			t.Errorf("TrustProxy = %v, want false", cfg.TrustProxy)
		}
		if cfg.DNTRespect != true {
			t.Errorf("DNTRespect = %v, want true", cfg.DNTRespect)
		}
		if cfg.MaxBodyBytes != 1<<20 {
			t.Errorf("MaxBodyBytes = %v, want %v", cfg.MaxBodyBytes, 1<<20)
		}
		if len(cfg.Outputs) != 1 || cfg.Outputs[0] != "log" {
			t.Errorf("Outputs = %v, want [log]", cfg.Outputs)
		}
		if cfg.TimeoutMS != 5000 {
			t.Errorf("TimeoutMS = %v, want 5000", cfg.TimeoutMS)
		}
		if !cfg.Suspicion || cfg.AllowUnstable || cfg.Sequential || !cfg.StableOnly {
			t.Errorf("unexpected fingerprint defaults %+v", cfg)
		}
		if cfg.Exclude != nil {
			t.Errorf("Exclude = %v, want nil", cfg.Exclude)
		}
		if cfg.TimingBackend != "memory" {
			t.Errorf("TimingBackend = %v, want memory", cfg.TimingBackend)
		}
		if cfg.TimingTTLSeconds != 3600 {
			t.Errorf("TimingTTLSeconds = %v, want 3600", cfg.TimingTTLSeconds)
		}
	})

	t.Run("loads custom values from env", func(t *testing.T) {
		os.Setenv("SERVER_ADDR", ":8080")
		os.Setenv("TRUST_PROXY", "true")
		os.Setenv("DNT_RESPECT", "false")
		os.Setenv("MAX_BODY_BYTES", "2097152")
		os.Setenv("IP_HASH_SECRET", "my-secret")
		os.Setenv("OUTPUTS", "kafka,postgres")
		os.Setenv("TEST_MODE", "yes")
		os.Setenv("ENABLE_HTTPS", "1")
		os.Setenv("HMAC_SECRET", "s3cret")
		os.Setenv("REQUIRE_HMAC", "true")
		os.Setenv("FP_TIMEOUT_MS", "250")
		os.Setenv("FP_SUSPICION", "false")
		os.Setenv("FP_STABLE_ONLY", "true")
		os.Setenv("FP_EXCLUDE", "audio, battery")
		os.Setenv("FP_RULES_PATH", "/etc/goprint/rules.yaml")
		os.Setenv("TIMING_BACKEND", "Redis")

		cfg := Load()

		if cfg.ServerAddr != ":8080" {
			t.Errorf("ServerAddr = %v, want :8080", cfg.ServerAddr)
		}
		if cfg.TrustProxy != true {
			t.Errorf("TrustProxy = %v, want true", cfg.TrustProxy)
		}
		if cfg.DNTRespect != false {
			t.Errorf("DNTRespect = %v, want false", cfg.DNTRespect)
		}
		if cfg.MaxBodyBytes != 2097152 {
			t.Errorf("MaxBodyBytes = %v, want 2097152", cfg.MaxBodyBytes)
		}
		if cfg.IPHashSecret != "my-secret" {
			t.Errorf("IPHashSecret = %v, want my-secret", cfg.IPHashSecret)
		}
		if len(cfg.Outputs) != 2 || cfg.Outputs[0] != "kafka" || cfg.Outputs[1] != "postgres" {
			t.Errorf("Outputs = %v, want [kafka postgres]", cfg.Outputs)
		}
		if cfg.TestMode != true {
			t.Errorf("TestMode = %v, want true", cfg.TestMode)
		}
		if cfg.EnableHTTPS != true {
			t.Errorf("EnableHTTPS = %v, want true", cfg.EnableHTTPS)
		}
		if cfg.HMACSecret != "s3cret" || !cfg.RequireHMAC {
			t.Errorf("HMAC = %q/%v", cfg.HMACSecret, cfg.RequireHMAC)
		}
		if cfg.TimeoutMS != 250 || cfg.Suspicion || !cfg.StableOnly {
			t.Errorf("unexpected fingerprint settings %+v", cfg)
		}
		if len(cfg.Exclude) != 2 || cfg.Exclude[0] != "audio" || cfg.Exclude[1] != "battery" {
			t.Errorf("Exclude = %v, want [audio battery]", cfg.Exclude)
		}
		if cfg.RulesPath != "/etc/goprint/rules.yaml" {
			t.Errorf("RulesPath = %v", cfg.RulesPath)
		}
		if cfg.TimingBackend != "redis" {
			t.Errorf("TimingBackend = %v, want redis", cfg.TimingBackend)
		}
	})
}
