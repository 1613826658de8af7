package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "dqa_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// useConfigDir points the global config at dir for the duration of the test.
func useConfigDir(t *testing.T, dir string) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.json")

	oldGetConfigDir := getConfigDirFunc
	oldGetConfigPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) {
		return dir, nil
	}
	getConfigPathFunc = func() (string, error) {
		return configPath, nil
	}
	t.Cleanup(func() {
		getConfigDirFunc = oldGetConfigDir
		getConfigPathFunc = oldGetConfigPath
	})
	return configPath
}

func writeConfig(t *testing.T, path string, cfg GlobalConfig) {
	t.Helper()
	data, _ := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "docqa"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, "config.json"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useConfigDir(t, t.TempDir())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_ValidFile(t *testing.T) {
	configPath := useConfigDir(t, t.TempDir())
	writeConfig(t, configPath, GlobalConfig{APIKey: testKey, APIURL: "http://localhost:8080"})

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, testKey, config.APIKey)
	assert.Equal(t, "http://localhost:8080", config.APIURL)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := useConfigDir(t, t.TempDir())
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid json}"), 0600))

	config, err := LoadGlobalConfig()
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_CreatesDirectoryWithPrivateFile(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "docqa")
	configPath := useConfigDir(t, configDir)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: testKey, APIURL: "http://localhost:8080"}))

	assert.DirExists(t, configDir)
	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, testKey, loaded.APIKey)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	err := SaveGlobalConfig(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := useConfigDir(t, t.TempDir())
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0600))

	require.NoError(t, DeleteGlobalConfig())
	assert.NoFileExists(t, configPath)

	// deleting twice is fine
	require.NoError(t, DeleteGlobalConfig())
}

func TestGetCredentialSource(t *testing.T) {
	tests := []struct {
		name       string
		flagKey    string
		flagURL    string
		envKey     string
		envURL     string
		global     *GlobalConfig
		wantSource CredentialSource
		wantKey    string
		wantURL    string
	}{
		{
			name:       "flag wins over env",
			flagKey:    "flag-key",
			flagURL:    "http://flag:8080",
			envKey:     "env-key",
			envURL:     "http://env:8080",
			wantSource: SourceFlag,
			wantKey:    "flag-key",
			wantURL:    "http://flag:8080",
		},
		{
			name:       "env wins over global config",
			envKey:     "env-key",
			envURL:     "http://env:8080",
			global:     &GlobalConfig{APIKey: "global-key", APIURL: "http://global:8080"},
			wantSource: SourceEnv,
			wantKey:    "env-key",
			wantURL:    "http://env:8080",
		},
		{
			name:       "global config",
			global:     &GlobalConfig{APIKey: "global-key", APIURL: "http://global:8080"},
			wantSource: SourceGlobalConfig,
			wantKey:    "global-key",
			wantURL:    "http://global:8080",
		},
		{
			name:       "env key with global url",
			envKey:     "env-key",
			global:     &GlobalConfig{APIURL: "http://global:8080"},
			wantSource: SourceEnv,
			wantKey:    "env-key",
			wantURL:    "http://global:8080",
		},
		{
			name:       "key without url uses default",
			flagKey:    "flag-key",
			wantSource: SourceFlag,
			wantKey:    "flag-key",
			wantURL:    defaultAPIURL,
		},
		{
			name:       "nothing configured",
			envURL:     "http://env:8080",
			wantSource: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envAPIKey, tt.envKey)
			t.Setenv(envAPIURL, tt.envURL)
			configPath := useConfigDir(t, t.TempDir())
			if tt.global != nil {
				writeConfig(t, configPath, *tt.global)
			}

			source, key, url := GetCredentialSource(tt.flagKey, tt.flagURL)

			assert.Equal(t, tt.wantSource, source)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}
