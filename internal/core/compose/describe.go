package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Describe
// =============================================================================

// Describe merges files in order, later files overriding earlier ones, and
// returns the declared services. env supplies interpolation values.
// This is a pure function - no I/O, no side effects.
func Describe(project string, files []File, env map[string]string) (*Description, error) {
	if len(files) == 0 {
		return nil, ErrEmptyInput
	}

	details := types.ConfigDetails{
		WorkingDir:  ".",
		Environment: types.Mapping(env),
	}
	for _, f := range files {
		var dict map[string]interface{}
		if err := yaml.Unmarshal(f.Content, &dict); err != nil {
			return nil, NewParseError(f.Name, "invalid YAML syntax", ErrInvalidYAML)
		}
		if dict == nil {
			// empty overlays are legal and contribute nothing
			dict = map[string]interface{}{}
		}
		details.ConfigFiles = append(details.ConfigFiles, types.ConfigFile{
			Filename: f.Name,
			Content:  f.Content,
			Config:   dict,
		})
	}

	p, err := loader.LoadWithContext(context.Background(), details, func(opts *loader.Options) {
		opts.SetProjectName(project, true)
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipConsistencyCheck = true
		opts.SkipResolveEnvironment = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	if len(p.Services) == 0 {
		return nil, ErrNoServices
	}

	desc := &Description{Project: p.Name}
	for _, name := range p.ServiceNames() {
		svc := p.Services[name]
		s := Service{
			Name:  name,
			Image: svc.Image,
			Build: svc.Build != nil,
		}
		for _, port := range svc.Ports {
			if port.Published != "" {
				s.Published = append(s.Published, port.Published)
			}
		}
		desc.Services = append(desc.Services, s)
	}
	sort.Slice(desc.Services, func(i, j int) bool { return desc.Services[i].Name < desc.Services[j].Name })
	return desc, nil
}

// =============================================================================
// Port Checks
// =============================================================================

// PortsOutside lists published ports that fall outside [first, last].
// Unparseable entries are listed as-is.
func PortsOutside(d *Description, first, last int) []string {
	var out []string
	for _, s := range d.Services {
		for _, raw := range s.Published {
			lo, hi, err := nat.ParsePortRangeToInt(raw)
			if err != nil || lo < first || hi > last {
				out = append(out, fmt.Sprintf("%s:%s", s.Name, strings.TrimSpace(raw)))
			}
		}
	}
	return out
}
