package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ManagedImage is an image declared in the catalog that the reconciler knows
// how to fetch and run. It is immutable once the catalog is built.
type ManagedImage struct {
	ID          string
	Path        string
	Label       string
	Ports       []string
	Volumes     []string
	Environment map[string]string
	NetworkMode string
	// Hosts maps a hostname injected into the container to either the ID of
	// another managed image or a literal hostname/IP.
	Hosts map[string]string
}

// HostNames returns the declared hostnames in a stable order.
func (m ManagedImage) HostNames() []string {
	return slices.Sorted(maps.Keys(m.Hosts))
}

// Env renders the environment as KEY=VALUE pairs sorted by key.
func (m ManagedImage) Env() []string {
	env := make([]string, 0, len(m.Environment))
	for _, key := range slices.Sorted(maps.Keys(m.Environment)) {
		env = append(env, key+"="+m.Environment[key])
	}
	return env
}

func (m ManagedImage) clone() ManagedImage {
	m.Ports = slices.Clone(m.Ports)
	m.Volumes = slices.Clone(m.Volumes)
	m.Environment = maps.Clone(m.Environment)
	m.Hosts = maps.Clone(m.Hosts)
	return m
}

// Catalog is the immutable set of managed images, keyed by identifier.
type Catalog struct {
	images map[string]ManagedImage
	ids    []string
}

// NewCatalog builds a catalog, keeping declaration order. Identifiers must be
// unique and non-empty and every image needs a reference path.
func NewCatalog(images ...ManagedImage) (Catalog, error) {
	c := Catalog{
		images: make(map[string]ManagedImage, len(images)),
		ids:    make([]string, 0, len(images)),
	}
	for _, image := range images {
		if strings.TrimSpace(image.ID) == "" {
			return Catalog{}, fmt.Errorf("image %q: %w", image.Path, ErrInvalidImage)
		}
		if strings.TrimSpace(image.Path) == "" {
			return Catalog{}, fmt.Errorf("image %q has no reference path: %w", image.ID, ErrInvalidImage)
		}
		if _, ok := c.images[image.ID]; ok {
			return Catalog{}, fmt.Errorf("duplicate image %q: %w", image.ID, ErrInvalidImage)
		}
		if image.Label == "" {
			image.Label = image.ID
		}
		c.images[image.ID] = image.clone()
		c.ids = append(c.ids, image.ID)
	}
	return c, nil
}

// Get returns the image declared under id.
func (c Catalog) Get(id string) (ManagedImage, bool) {
	image, ok := c.images[id]
	if !ok {
		return ManagedImage{}, false
	}
	return image.clone(), true
}

// Has reports whether id names a managed image.
func (c Catalog) Has(id string) bool {
	_, ok := c.images[id]
	return ok
}

// IDs returns the identifiers in declaration order.
func (c Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

func (c Catalog) Len() int {
	return len(c.ids)
}
