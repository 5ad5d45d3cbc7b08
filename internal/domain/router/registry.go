// Package router maps URI schemes and capabilities to backends and merges
// their answers.
package router

import (
	"fmt"
	"strings"

	"github.com/edumarques81/stellar-mediacore/internal/domain/backend"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Registry is the immutable set of backends known for a session. When
// several backends claim a scheme they are consulted, and their results
// merged, in registration order.
type Registry struct {
	backends []*backend.Descriptor
	byScheme map[string][]*backend.Descriptor
}

// NewRegistry validates and freezes the given backends.
func NewRegistry(descs ...*backend.Descriptor) (*Registry, error) {
	r := &Registry{
		backends: make([]*backend.Descriptor, 0, len(descs)),
		byScheme: make(map[string][]*backend.Descriptor),
	}

	names := make(map[string]bool)
	for _, d := range descs {
		if d == nil {
			continue
		}
		if names[d.Name()] {
			return nil, errors.Wrap(errors.ErrInvalidConfig, "registry", fmt.Errorf("duplicate backend name %q", d.Name()))
		}
		if len(d.Schemes()) == 0 {
			return nil, errors.Wrap(errors.ErrInvalidConfig, "registry", fmt.Errorf("backend %q claims no URI scheme", d.Name()))
		}
		names[d.Name()] = true

		r.backends = append(r.backends, d)
		for _, s := range d.Schemes() {
			s = strings.ToLower(s)
			r.byScheme[s] = append(r.byScheme[s], d)
		}
	}
	return r, nil
}

// Backends returns all backends in registration order.
func (r *Registry) Backends() []*backend.Descriptor {
	return append([]*backend.Descriptor(nil), r.backends...)
}

// ForScheme returns the backends claiming scheme, in registration order.
func (r *Registry) ForScheme(scheme string) []*backend.Descriptor {
	return append([]*backend.Descriptor(nil), r.byScheme[strings.ToLower(scheme)]...)
}

// WithCapability returns the backends implementing c, in registration order.
func (r *Registry) WithCapability(c backend.Capability) []*backend.Descriptor {
	var out []*backend.Descriptor
	for _, d := range r.backends {
		if d.Has(c) {
			out = append(out, d)
		}
	}
	return out
}

// Schemes returns every claimed scheme in registration order.
func (r *Registry) Schemes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range r.backends {
		for _, s := range d.Schemes() {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Stop terminates every backend.
func (r *Registry) Stop() {
	for _, d := range r.backends {
		d.Stop()
	}
}
