package services

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/kubescape/dockwatch/core/domain"
	"github.com/kubescape/dockwatch/core/ports"
)

const dependencyErrorTitle = "Dependency error"

// resolveHosts maps every hostname declared by image to the address it should
// resolve to inside the new container. A target naming another managed image
// resolves to that image's container IP, anything else is passed through as
// a literal. All unmet dependencies are reported together, in hostname order.
func resolveHosts(catalog domain.Catalog, store ports.Store, image domain.ManagedImage) (map[string]string, error) {
	hosts := make(map[string]string, len(image.Hosts))
	var result *multierror.Error
	for _, hostname := range image.HostNames() {
		target := image.Hosts[hostname]
		if !catalog.Has(target) {
			hosts[hostname] = target
			continue
		}
		state, ok := store.ImageState(target)
		switch {
		case !ok:
			result = multierror.Append(result, &domain.DependencyError{Dependency: target, Err: domain.ErrDependencyNotLoaded})
		case state.ContainerIP == "":
			result = multierror.Append(result, &domain.DependencyError{Dependency: target, Err: domain.ErrDependencyNoIP})
		default:
			hosts[hostname] = state.ContainerIP
		}
	}
	if result == nil {
		return hosts, nil
	}
	result.ErrorFormat = joinLines
	return nil, result
}

// joinLines renders one unmet dependency per line, without the count header
// multierror prints by default, so a single failure reads as that failure.
func joinLines(errs []error) string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}
