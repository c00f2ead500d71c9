package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Manifest is the action manifest consumed by the VR runtime's binding UI.
type Manifest struct {
	DefaultBindings []ManifestBinding   `json:"default_bindings"`
	Actions         []ManifestAction    `json:"actions"`
	ActionSets      []ManifestActionSet `json:"action_sets"`
	Localization    []map[string]string `json:"localization"`
}

type ManifestBinding struct {
	ControllerType string `json:"controller_type"`
	BindingURL     string `json:"binding_url"`
}

type ManifestAction struct {
	Name        string `json:"name"`
	Requirement string `json:"requirement"`
	Type        string `json:"type"`
}

type ManifestActionSet struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
}

const (
	manifestLanguageTag = "en_us"
	manifestUsage       = "leftright"
	manifestRequirement = "optional"
)

// InputType returns the manifest input type for an action kind.
func (k Kind) InputType() string {
	if k == KindAnalog {
		return "vector1"
	}
	return "boolean"
}

// BuildManifest describes every group and action for the input runtime.
func BuildManifest(groups []Group) Manifest {
	labels := map[string]string{"language_tag": manifestLanguageTag}
	m := Manifest{
		DefaultBindings: []ManifestBinding{},
		Actions:         []ManifestAction{},
		ActionSets:      make([]ManifestActionSet, 0, len(groups)),
	}

	for _, g := range groups {
		setPath := g.Path()
		m.ActionSets = append(m.ActionSets, ManifestActionSet{Name: setPath, Usage: manifestUsage})
		labels[setPath] = g.Name

		for _, a := range g.Actions {
			path := g.ActionPath(a)
			m.Actions = append(m.Actions, ManifestAction{
				Name:        path,
				Requirement: manifestRequirement,
				Type:        a.Kind().InputType(),
			})
			labels[path] = a.Name
		}
	}

	m.Localization = []map[string]string{labels}
	return m
}

// WriteManifest encodes the manifest for groups as JSON.
func WriteManifest(w io.Writer, groups []Group) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildManifest(groups)); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// WriteManifestFile writes the manifest to path, replacing any previous file.
func WriteManifestFile(path string, groups []Group) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := WriteManifest(f, groups); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}
