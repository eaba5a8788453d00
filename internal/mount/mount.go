// Package mount describes the UI container injected next to the comment
// form: a <div> hosting an open shadow root, placed right after the comment
// input (or the form when no input is present).
package mount

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultContainerID is the id of the injected container.
const DefaultContainerID = "PH-Copilot-Container"

// Spec is a ready-to-apply mount description. Template has already been
// sanitised.
type Spec struct {
	ContainerID   string `json:"container_id"`
	InputSelector string `json:"input_selector"`
	FormSelector  string `json:"form_selector"`
	Template      string `json:"template"`
	Style         string `json:"style"`
}

// Anchors returns the selectors to try, in order, when placing the
// container.
func (s Spec) Anchors() []string {
	var out []string
	for _, sel := range []string{s.InputSelector, s.FormSelector} {
		if strings.TrimSpace(sel) != "" {
			out = append(out, sel)
		}
	}
	return out
}

// Options configure Build.
type Options struct {
	ContainerID   string
	InputSelector string
	FormSelector  string
	Template      string // untrusted HTML from configuration
	Style         string
}

// Build sanitises the template with the UGC policy and fills defaults.
func Build(opts Options) Spec {
	id := opts.ContainerID
	if id == "" {
		id = DefaultContainerID
	}
	return Spec{
		ContainerID:   id,
		InputSelector: opts.InputSelector,
		FormSelector:  opts.FormSelector,
		Template:      sanitize(opts.Template),
		Style:         strings.ReplaceAll(opts.Style, "</", `<\/`),
	}
}

var policy = bluemonday.UGCPolicy()

func sanitize(tmpl string) string {
	if strings.TrimSpace(tmpl) == "" {
		return ""
	}
	return policy.Sanitize(tmpl)
}

// Script is evaluated in the page with the Spec as its only argument. It
// returns true when it inserted the container.
const Script = `(spec) => {
	if (document.getElementById(spec.container_id)) return false;
	let anchor = null;
	for (const sel of [spec.input_selector, spec.form_selector]) {
		if (!sel) continue;
		anchor = document.querySelector(sel);
		if (anchor) break;
	}
	if (!anchor || !anchor.parentNode) return false;
	const container = document.createElement("div");
	container.id = spec.container_id;
	container.dataset.formwatch = "mount";
	const root = container.attachShadow({ mode: "open" });
	if (spec.style) {
		const style = document.createElement("style");
		style.textContent = spec.style;
		root.appendChild(style);
	}
	const content = document.createElement("div");
	content.id = spec.container_id + "-content";
	content.innerHTML = spec.template || "";
	root.appendChild(content);
	anchor.parentNode.insertBefore(container, anchor.nextSibling);
	return true;
}`
