package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
pages:
  - url: https://www.producthunt.com/posts/widget
sinks:
  - type: stdout
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Env != "development" || cfg.Production() {
		t.Errorf("Env: got %q", cfg.Env)
	}
	if cfg.Browser.RecycleInterval != 4*time.Hour || cfg.Browser.Stealth != "headless" {
		t.Errorf("Browser defaults: %+v", cfg.Browser)
	}
	p := cfg.Pages[0]
	if p.ID != p.URL {
		t.Errorf("ID: got %q, want the URL", p.ID)
	}
	if p.FormSelector != DefaultFormSelector || p.InputSelector != DefaultInputSelector {
		t.Errorf("selectors: %q %q", p.FormSelector, p.InputSelector)
	}
	if p.Mount.ContainerID != DefaultContainerID {
		t.Errorf("ContainerID: got %q", p.Mount.ContainerID)
	}
}

func TestLoadFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
env: production
browser:
  remote: ws://127.0.0.1:9222/devtools/browser/abc
  recycle_interval: 30m
pages:
  - id: widget
    url: https://example.com/posts/widget
    form_selector: "#comments form"
    mount:
      container_id: copilot
      template: "<b>hi</b>"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Production() {
		t.Error("Production: got false")
	}
	if cfg.Browser.RecycleInterval != 30*time.Minute {
		t.Errorf("RecycleInterval: got %v", cfg.Browser.RecycleInterval)
	}
	p := cfg.Pages[0]
	if p.FormSelector != "#comments form" || p.Mount.ContainerID != "copilot" || p.Mount.Template != "<b>hi</b>" {
		t.Errorf("page: %+v", p)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"no url":       "pages:\n  - id: a\n",
		"duplicate id": "pages:\n  - {id: a, url: 'https://a'}\n  - {id: a, url: 'https://b'}\n",
		"bad sink":     "sinks:\n  - type: nats\n",
		"webhook url":  "sinks:\n  - type: webhook\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "nope.yaml") {
		t.Errorf("got %v", err)
	}
}
