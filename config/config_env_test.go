package config

import (
	"strings"
	"testing"
	"time"
)

// TestEnvironmentVariableExpansion tests ${VAR} references inside the YAML file
func TestEnvironmentVariableExpansion(t *testing.T) {
	testCases := []struct {
		name       string
		envVars    map[string]string
		yamlConfig string
		validate   func(*testing.T, *Config)
		wantErr    bool
		errMsg     string
	}{
		{
			name: "basic env var expansion",
			envVars: map[string]string{
				"COPILOT_TEST_KEY": "test-key-123",
			},
			yamlConfig: `
upstream:
    api_key: ${COPILOT_TEST_KEY}`,
			validate: func(t *testing.T, c *Config) {
				if c.Upstream.APIKey != "test-key-123" {
					t.Errorf("API key not expanded correctly, got %s, want test-key-123", c.Upstream.APIKey)
				}
			},
		},
		{
			name:    "missing env var",
			envVars: map[string]string{},
			yamlConfig: `
upstream:
    api_key: ${COPILOT_MISSING_KEY}`,
			validate: func(t *testing.T, c *Config) {
				if c.Upstream.APIKey != "" {
					t.Errorf("Missing env var should expand to empty string, got %s", c.Upstream.APIKey)
				}
				if c.HasCredential() {
					t.Error("credential should be reported missing")
				}
			},
		},
		{
			name: "multiple env vars in single value",
			envVars: map[string]string{
				"COPILOT_API_HOST":    "api.example.test",
				"COPILOT_API_VERSION": "v1",
			},
			yamlConfig: `
upstream:
    endpoint: https://${COPILOT_API_HOST}/${COPILOT_API_VERSION}/responses`,
			validate: func(t *testing.T, c *Config) {
				expected := "https://api.example.test/v1/responses"
				if c.Upstream.Endpoint != expected {
					t.Errorf("Multiple env vars not expanded correctly, got %s, want %s",
						c.Upstream.Endpoint, expected)
				}
			},
		},
		{
			name:    "default value syntax",
			envVars: map[string]string{},
			yamlConfig: `
upstream:
    model: ${COPILOT_UNSET_MODEL:-gpt-4.1-nano}`,
			validate: func(t *testing.T, c *Config) {
				if c.Upstream.Model != "gpt-4.1-nano" {
					t.Errorf("default not applied, got %s", c.Upstream.Model)
				}
			},
		},
		{
			name:    "unterminated reference",
			envVars: map[string]string{},
			yamlConfig: `
upstream:
    api_key: ${COPILOT_TEST_KEY`,
			wantErr: true,
			errMsg:  "invalid syntax",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}

			config, err := Load(strings.NewReader(tc.yamlConfig))

			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tc.errMsg)
				} else if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("Expected error containing %q, got %v", tc.errMsg, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			tc.validate(t, config)
		})
	}
}

// TestEnvironmentOverrides tests that process environment wins over the file
func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	t.Setenv("UPSTREAM_TIMEOUT", "15s")
	t.Setenv("LOG_LEVEL", "warn")

	yamlConfig := `
server:
    port: 9000
upstream:
    api_key: sk-from-file
`

	config, err := Load(strings.NewReader(yamlConfig))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Server.Port != 8081 {
		t.Errorf("PORT override not applied, got %d", config.Server.Port)
	}
	if config.Upstream.APIKey != "sk-from-env" {
		t.Errorf("OPENAI_API_KEY override not applied, got %s", config.Upstream.APIKey)
	}
	if config.Upstream.Model != "gpt-4.1" {
		t.Errorf("OPENAI_MODEL override not applied, got %s", config.Upstream.Model)
	}
	if config.Upstream.Timeout != 15*time.Second {
		t.Errorf("UPSTREAM_TIMEOUT override not applied, got %v", config.Upstream.Timeout)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("LOG_LEVEL override not applied, got %s", config.Logging.Level)
	}
}

// TestConfigValidationWithEnvVars tests that env supplied values are validated
func TestConfigValidationWithEnvVars(t *testing.T) {
	clearEnv(t)

	t.Run("invalid port from env var", func(t *testing.T) {
		t.Setenv("PORT", "70000")
		_, err := Load(strings.NewReader(""))
		if err == nil || !strings.Contains(err.Error(), "invalid port") {
			t.Errorf("Expected invalid port error, got %v", err)
		}
	})

	t.Run("unparseable port from env var", func(t *testing.T) {
		t.Setenv("PORT", "abc")
		_, err := Load(strings.NewReader(""))
		if err == nil || !strings.Contains(err.Error(), "parse environment") {
			t.Errorf("Expected parse error, got %v", err)
		}
	})
}
