package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.LiveClientPort != "9090" {
		t.Errorf("expected default LiveClientPort '9090', got %q", cfg.LiveClientPort)
	}
	if cfg.AutomationPort != "9091" {
		t.Errorf("expected default AutomationPort '9091', got %q", cfg.AutomationPort)
	}
	if cfg.SerialVendorID != 0x0403 {
		t.Errorf("expected default SerialVendorID 0x0403, got 0x%04x", cfg.SerialVendorID)
	}
	if cfg.SerialProductID != 0x6001 {
		t.Errorf("expected default SerialProductID 0x6001, got 0x%04x", cfg.SerialProductID)
	}
	if cfg.SerialBaudRate != 250000 {
		t.Errorf("expected default SerialBaudRate 250000, got %d", cfg.SerialBaudRate)
	}
	if cfg.SerialRefreshRate != 25*time.Millisecond {
		t.Errorf("expected default SerialRefreshRate 25ms, got %v", cfg.SerialRefreshRate)
	}
	if cfg.FadeTickInterval != 25*time.Millisecond {
		t.Errorf("expected default FadeTickInterval 25ms, got %v", cfg.FadeTickInterval)
	}
	if cfg.ThrottleInterval != 33*time.Millisecond {
		t.Errorf("expected default ThrottleInterval 33ms, got %v", cfg.ThrottleInterval)
	}
	if !cfg.SerialEnabled {
		t.Error("expected SerialEnabled to default true")
	}
}

func TestLoad_CustomEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "file:./prod.db")
	t.Setenv("LIVE_CLIENT_PORT", "9190")
	t.Setenv("AUTOMATION_PORT", "9191")
	t.Setenv("SERIAL_ENABLED", "false")
	t.Setenv("SERIAL_VENDOR_ID", "1027")
	t.Setenv("SERIAL_PRODUCT_ID", "24577")
	t.Setenv("SERIAL_REFRESH_MS", "40")
	t.Setenv("SERIAL_RECONNECT_MIN_MS", "500")
	t.Setenv("SERIAL_RECONNECT_MAX_MS", "15000")
	t.Setenv("FADE_TICK_MS", "50")
	t.Setenv("LIVE_CLIENT_THROTTLE_MS", "16")
	t.Setenv("NON_INTERACTIVE", "true")
	t.Setenv("CORS_ORIGIN", "http://example.com")

	cfg := Load()

	if cfg.Env != "production" {
		t.Errorf("expected Env 'production', got %q", cfg.Env)
	}
	if cfg.DatabaseURL != "file:./prod.db" {
		t.Errorf("expected DatabaseURL 'file:./prod.db', got %q", cfg.DatabaseURL)
	}
	if cfg.LiveClientPort != "9190" {
		t.Errorf("expected LiveClientPort '9190', got %q", cfg.LiveClientPort)
	}
	if cfg.AutomationPort != "9191" {
		t.Errorf("expected AutomationPort '9191', got %q", cfg.AutomationPort)
	}
	if cfg.SerialEnabled {
		t.Error("expected SerialEnabled false")
	}
	if cfg.SerialVendorID != 1027 {
		t.Errorf("expected SerialVendorID 1027, got %d", cfg.SerialVendorID)
	}
	if cfg.SerialProductID != 24577 {
		t.Errorf("expected SerialProductID 24577, got %d", cfg.SerialProductID)
	}
	if cfg.SerialRefreshRate != 40*time.Millisecond {
		t.Errorf("expected SerialRefreshRate 40ms, got %v", cfg.SerialRefreshRate)
	}
	if cfg.SerialReconnectMin != 500*time.Millisecond {
		t.Errorf("expected SerialReconnectMin 500ms, got %v", cfg.SerialReconnectMin)
	}
	if cfg.SerialReconnectMax != 15000*time.Millisecond {
		t.Errorf("expected SerialReconnectMax 15000ms, got %v", cfg.SerialReconnectMax)
	}
	if cfg.FadeTickInterval != 50*time.Millisecond {
		t.Errorf("expected FadeTickInterval 50ms, got %v", cfg.FadeTickInterval)
	}
	if cfg.ThrottleInterval != 16*time.Millisecond {
		t.Errorf("expected ThrottleInterval 16ms, got %v", cfg.ThrottleInterval)
	}
	if cfg.NonInteractive != true {
		t.Errorf("expected NonInteractive true, got %v", cfg.NonInteractive)
	}
	if cfg.CORSOrigin != "http://example.com" {
		t.Errorf("expected CORSOrigin 'http://example.com', got %q", cfg.CORSOrigin)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v for env '%s'", got, tt.expected, tt.env)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsProduction(); got != tt.expected {
				t.Errorf("IsProduction() = %v, want %v for env '%s'", got, tt.expected, tt.env)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_GET_ENV", "custom_value")

	result := getEnv("TEST_GET_ENV", "default")
	if result != "custom_value" {
		t.Errorf("Expected 'custom_value', got '%s'", result)
	}

	result = getEnv("NON_EXISTING_VAR_12345_UNIQUE", "default_value")
	if result != "default_value" {
		t.Errorf("Expected 'default_value', got '%s'", result)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")

	result := getEnvInt("TEST_INT_VAR", 10)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	t.Setenv("TEST_INVALID_INT", "not_a_number")

	result = getEnvInt("TEST_INVALID_INT", 10)
	if result != 10 {
		t.Errorf("Expected default 10 for invalid int, got %d", result)
	}

	result = getEnvInt("NON_EXISTING_INT_VAR_12345_UNIQUE", 100)
	if result != 100 {
		t.Errorf("Expected default 100, got %d", result)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
		setEnv       bool
	}{
		{"true_string", "true", false, true, true},
		{"false_string", "false", true, false, true},
		{"1_string", "1", false, true, true},
		{"0_string", "0", true, false, true},
		{"invalid_string_returns_default", "invalid", true, true, true},
		{"non_existing_returns_default_true", "", true, true, false},
		{"non_existing_returns_default_false", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envKey := "TEST_BOOL_VAR_" + tt.name + "_UNIQUE"
			if tt.setEnv {
				t.Setenv(envKey, tt.envValue)
			}

			result := getEnvBool(envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvBool(%s, %v) = %v, want %v", envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}
