package poller

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RenderMode selects how payload items are put into the page.
type RenderMode string

const (
	// RenderPlot parses each item as a plot specification.
	RenderPlot RenderMode = "plot"
	// RenderMarkup injects each item as HTML.
	RenderMarkup RenderMode = "markup"
)

const (
	defaultContainerStyle = "height: 400px;"
	defaultProgressNoun   = "graphs"
)

// Variant describes one dashboard page: which endpoint it polls and how the
// finished payload is rendered.
type Variant struct {
	Name            string     `yaml:"name" json:"name"`
	Title           string     `yaml:"title,omitempty" json:"title,omitempty"`
	Endpoint        string     `yaml:"endpoint" json:"endpoint"`
	ItemsField      string     `yaml:"items_field" json:"items_field"`
	RenderMode      RenderMode `yaml:"render_mode" json:"render_mode"`
	ContainerPrefix string     `yaml:"container_prefix" json:"container_prefix"`
	ContainerClass  string     `yaml:"container_class,omitempty" json:"container_class,omitempty"`
	ContainerStyle  string     `yaml:"container_style,omitempty" json:"container_style,omitempty"`

	// ProgressCounter writes "<n> out of <ItemTarget> <ProgressNoun> finished."
	// into the progress element on every pending poll.
	ProgressCounter bool   `yaml:"progress_counter,omitempty" json:"progress_counter,omitempty"`
	ItemTarget      int    `yaml:"item_target,omitempty" json:"item_target,omitempty"`
	ProgressNoun    string `yaml:"progress_noun,omitempty" json:"progress_noun,omitempty"`
	// HideProgress hides the progress element, when the page has one, on completion.
	HideProgress bool `yaml:"hide_progress,omitempty" json:"hide_progress,omitempty"`
	// LogCount logs the reported item count on every poll.
	LogCount bool `yaml:"log_count,omitempty" json:"log_count,omitempty"`
	// Downloads names the report archives linked from the page.
	Downloads []string `yaml:"downloads,omitempty" json:"downloads,omitempty"`
}

// Built-in variants served by the QC backend.
var (
	Graphs = Variant{
		Name:            "graphs",
		Title:           "FHIR quality graphs",
		Endpoint:        "/check_graphs_done_fhir",
		ItemsField:      "graphs",
		RenderMode:      RenderPlot,
		ContainerPrefix: "graph",
		ProgressCounter: true,
		ItemTarget:      16,
		HideProgress:    true,
		Downloads:       []string{"graphs_fhir_zip", "failures_fhir_zip"},
	}
	Failures = Variant{
		Name:            "failures",
		Title:           "FHIR quality failures",
		Endpoint:        "/check_failures_done_fhir",
		ItemsField:      "tables",
		RenderMode:      RenderPlot,
		ContainerPrefix: "table",
		Downloads:       []string{"graphs_fhir_zip", "failures_fhir_zip"},
	}
	FailuresExtra = Variant{
		Name:            "failures_extra",
		Title:           "FHIR quality failures (extra)",
		Endpoint:        "/check_failures_done_fhir_extra",
		ItemsField:      "tables",
		RenderMode:      RenderMarkup,
		ContainerPrefix: "table",
		HideProgress:    true,
		LogCount:        true,
		Downloads:       []string{"graphs_fhir_zip_extra", "failures_fhir_zip_extra"},
	}
)

// Builtin returns the built-in variants keyed by name.
func Builtin() map[string]Variant {
	return map[string]Variant{
		Graphs.Name:        Graphs,
		Failures.Name:      Failures,
		FailuresExtra.Name: FailuresExtra,
	}
}

// withDefaults fills optional fields.
func (v Variant) withDefaults() Variant {
	if v.Title == "" {
		v.Title = v.Name
	}
	if v.ContainerClass == "" && v.ContainerPrefix != "" {
		v.ContainerClass = v.ContainerPrefix + "-container"
	}
	if v.ContainerStyle == "" {
		v.ContainerStyle = defaultContainerStyle
	}
	if v.ProgressNoun == "" {
		v.ProgressNoun = defaultProgressNoun
	}
	return v
}

// Validate checks a variant definition.
func (v Variant) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variant name must not be empty")
	}
	if !strings.HasPrefix(v.Endpoint, "/") {
		return fmt.Errorf("variant %s: endpoint must start with /", v.Name)
	}
	if v.ItemsField == "" {
		return fmt.Errorf("variant %s: items_field must not be empty", v.Name)
	}
	switch v.RenderMode {
	case RenderPlot, RenderMarkup:
		// ok
	default:
		return fmt.Errorf("variant %s: invalid render_mode %q (must be plot|markup)", v.Name, v.RenderMode)
	}
	if v.ContainerPrefix == "" {
		return fmt.Errorf("variant %s: container_prefix must not be empty", v.Name)
	}
	if v.ProgressCounter && v.ItemTarget <= 0 {
		return fmt.Errorf("variant %s: item_target must be > 0 with progress_counter", v.Name)
	}
	return nil
}

// ProgressText is the progress element text after a pending poll.
func (v Variant) ProgressText(count int) string {
	return fmt.Sprintf("%d out of %d %s finished. Please wait.", count, v.ItemTarget, v.withDefaults().ProgressNoun)
}

// ContainerID is the id of the i-th (0-based) rendered container.
func (v Variant) ContainerID(i int) string {
	return fmt.Sprintf("%s-%d", v.ContainerPrefix, i)
}

type variantsFile struct {
	Variants []Variant `yaml:"variants"`
}

// LoadVariants returns the built-in variants overlaid with the definitions in
// path. An empty path yields the built-ins.
func LoadVariants(path string) (map[string]Variant, error) {
	defs := Builtin()
	if path == "" {
		return defs, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file: %w", err)
	}
	var f variantsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse variants file %s: %w", path, err)
	}
	for _, v := range f.Variants {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("variants file %s: %w", path, err)
		}
		defs[v.Name] = v
	}
	return defs, nil
}

// Resolve picks the named variants from defs, preserving order.
func Resolve(names []string, defs map[string]Variant) ([]Variant, error) {
	out := make([]Variant, 0, len(names))
	for _, name := range names {
		v, ok := defs[name]
		if !ok {
			known := make([]string, 0, len(defs))
			for k := range defs {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("unknown variant %q (known: %s)", name, strings.Join(known, ", "))
		}
		out = append(out, v.withDefaults())
	}
	return out, nil
}
