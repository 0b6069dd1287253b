package appmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ManifestSchema is written into every manifest
const ManifestSchema = "https://json.schemastore.org/aspire-8.0.json"

// Manifest is the deployment description produced in publish mode.
type Manifest struct {
	Schema    string                      `json:"$schema"`
	Resources map[string]ManifestResource `json:"resources"`
}

// ManifestResource is one entry of a manifest. Fields not used by a resource
// type are omitted.
type ManifestResource struct {
	Type             string                     `json:"type"`
	ConnectionString string                     `json:"connectionString,omitempty"`
	Image            string                     `json:"image,omitempty"`
	Entrypoint       string                     `json:"entrypoint,omitempty"`
	Args             []string                   `json:"args,omitempty"`
	Env              map[string]string          `json:"env,omitempty"`
	Bindings         map[string]ManifestBinding `json:"bindings,omitempty"`
	Volumes          []ManifestMount            `json:"volumes,omitempty"`
	BindMounts       []ManifestMount            `json:"bindMounts,omitempty"`
	Value            string                     `json:"value,omitempty"`
	Inputs           map[string]ManifestInput   `json:"inputs,omitempty"`
}

type ManifestBinding struct {
	Scheme     string `json:"scheme"`
	Protocol   string `json:"protocol"`
	Transport  string `json:"transport"`
	TargetPort int    `json:"targetPort"`
	Port       int    `json:"port,omitempty"`
}

type ManifestMount struct {
	Name     string `json:"name,omitempty"`
	Source   string `json:"source,omitempty"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly"`
}

type ManifestInput struct {
	Type    string                `json:"type"`
	Secret  bool                  `json:"secret,omitempty"`
	Default *ManifestInputDefault `json:"default,omitempty"`
}

type ManifestInputDefault struct {
	Generate *GenerateParameterDefault `json:"generate,omitempty"`
}

// Manifest renders the application. Resources marked with
// ExcludeFromManifest are skipped.
func (a *Application) Manifest(ctx context.Context) (*Manifest, error) {
	m := &Manifest{
		Schema:    ManifestSchema,
		Resources: make(map[string]ManifestResource),
	}
	for _, r := range a.resources {
		if HasAnnotation[*ExcludeFromManifestAnnotation](r) {
			continue
		}
		entry, ok, err := a.manifestEntry(ctx, r)
		if err != nil {
			return nil, err
		}
		if ok {
			m.Resources[r.Name()] = entry
		}
	}
	return m, nil
}

// WriteManifest writes the manifest as indented JSON.
func (a *Application) WriteManifest(ctx context.Context, w io.Writer) error {
	m, err := a.Manifest(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(m)
}

func (a *Application) manifestEntry(ctx context.Context, r Resource) (ManifestResource, bool, error) {
	switch {
	case IsContainer(r):
		entry, err := a.containerEntry(ctx, r)
		return entry, err == nil, err
	default:
		switch v := r.(type) {
		case *ParameterResource:
			return parameterEntry(v), true, nil
		case ResourceWithConnectionString:
			return ManifestResource{
				Type:             "value.v0",
				ConnectionString: v.ConnectionStringExpression().ValueExpression(),
			}, true, nil
		}
	}
	return ManifestResource{}, false, nil
}

func (a *Application) containerEntry(ctx context.Context, r Resource) (ManifestResource, error) {
	img, _ := LastAnnotation[*ContainerImageAnnotation](r)
	entry := ManifestResource{
		Type:  "container.v0",
		Image: img.Reference(),
	}

	if cs, ok := r.(ResourceWithConnectionString); ok {
		entry.ConnectionString = cs.ConnectionStringExpression().ValueExpression()
	}
	if ep, ok := LastAnnotation[*EntrypointAnnotation](r); ok {
		entry.Entrypoint = ep.Entrypoint
	}

	args, err := ArgValues(ctx, a.exec, r)
	if err != nil {
		return entry, err
	}
	for i, v := range args {
		s, err := renderValue(v)
		if err != nil {
			return entry, fmt.Errorf("arguments of %s: #%d: %w", r.Name(), i, err)
		}
		entry.Args = append(entry.Args, s)
	}

	env, err := EnvironmentValues(ctx, a.exec, r)
	if err != nil {
		return entry, err
	}
	if len(env) > 0 {
		entry.Env = make(map[string]string, len(env))
		for k, v := range env {
			s, err := renderValue(v)
			if err != nil {
				return entry, fmt.Errorf("environment of %s: %s: %w", r.Name(), k, err)
			}
			entry.Env[k] = s
		}
	}

	for _, e := range AnnotationsOf[*EndpointAnnotation](r) {
		if entry.Bindings == nil {
			entry.Bindings = make(map[string]ManifestBinding)
		}
		entry.Bindings[e.Name] = ManifestBinding{
			Scheme:     e.Scheme,
			Protocol:   "tcp",
			Transport:  e.Transport,
			TargetPort: e.TargetPort,
			Port:       e.Port,
		}
	}

	for _, m := range AnnotationsOf[*ContainerMountAnnotation](r) {
		switch m.Type {
		case MountTypeVolume:
			entry.Volumes = append(entry.Volumes, ManifestMount{Name: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
		case MountTypeBind:
			entry.BindMounts = append(entry.BindMounts, ManifestMount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
		}
	}
	return entry, nil
}

func parameterEntry(p *ParameterResource) ManifestResource {
	input := ManifestInput{Type: "string", Secret: p.Secret}
	if p.Default != nil {
		input.Default = &ManifestInputDefault{Generate: p.Default}
	}
	return ManifestResource{
		Type:   "parameter.v0",
		Value:  "{" + p.name + ".inputs.value}",
		Inputs: map[string]ManifestInput{"value": input},
	}
}
