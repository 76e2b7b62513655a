package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold 在指定目录下初始化项目级配置模板（./.vidpredict/config.json）。
// InitProjectConfigScaffold writes a project-level config scaffold (./.vidpredict/config.json) under projectDir.
// An existing file is left untouched; the returned bool reports whether a file was written.
func InitProjectConfigScaffold(projectDir string) (string, bool, error) {
	dir := filepath.Join(strings.TrimSpace(projectDir), ".vidpredict")
	path := filepath.Join(dir, "config.json")

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return path, false, fmt.Errorf("project config path is a directory: %s", path)
		}
		return path, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return path, false, fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, false, fmt.Errorf("mkdir .vidpredict: %w", err)
	}

	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return path, false, fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, false, fmt.Errorf("write project config: %w", err)
	}
	return path, true, nil
}

// WriteAPIBaseURL 将 api.base_url 写入项目配置；目录不存在则创建
// WriteAPIBaseURL writes api.base_url to the project config, keeping every other key intact.
func WriteAPIBaseURL(projectDir, baseURL string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return errors.New("base url is empty")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return fmt.Errorf("base url must start with http:// or https://: %q", baseURL)
	}
	dir := filepath.Join(strings.TrimSpace(projectDir), ".vidpredict")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .vidpredict: %w", err)
	}
	path := filepath.Join(dir, "config.json")
	var out map[string]any
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(stripJSONComments(data), &out); err != nil {
			out = nil
		}
	}
	if out == nil {
		out = make(map[string]any)
	}
	apiMap, _ := out["api"].(map[string]any)
	if apiMap == nil {
		apiMap = make(map[string]any)
	}
	apiMap["base_url"] = baseURL
	out["api"] = apiMap
	data, err = json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
