package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/555Russich/18.fl-auto-response/internal/driver"
)

// LoadCookies reads a cookie file written by SaveCookies.
func LoadCookies(path string) ([]driver.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []driver.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}
	return cookies, nil
}

// SaveCookies replaces the cookie file atomically.
func SaveCookies(path string, cookies []driver.Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict cookie file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}
