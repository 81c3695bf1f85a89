package pluginsys

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/ncatbot/ncatbot-go/errors"
)

// ErrDependencyCycle is returned when a plugin dependency graph contains
// a cycle.
var ErrDependencyCycle = errors.New("pluginsys: dependency cycle")

// ErrUnsatisfiedDependency is returned when a declared dependency is
// missing or its version falls outside the requested constraint.
var ErrUnsatisfiedDependency = errors.New("pluginsys: unsatisfied dependency")

// ResolveOrder computes a load order for manifests (name -> Manifest)
// via Kahn's algorithm: dependencies before dependents. Every dependency
// must both be present in manifests and satisfy its semver constraint,
// checked before any topological work begins so a bad constraint never
// partially resolves.
func ResolveOrder(manifests map[string]Manifest) ([]string, error) {
	for name, m := range manifests {
		for dep, constraint := range m.Dependencies {
			depManifest, ok := manifests[dep]
			if !ok {
				return nil, errors.Wrapf(ErrUnsatisfiedDependency, "%s requires %s (not present)", name, dep)
			}
			if constraint == "" {
				continue
			}
			c, err := semver.NewConstraint(constraint)
			if err != nil {
				return nil, errors.Wrapf(err, "pluginsys: invalid constraint %q on %s->%s", constraint, name, dep)
			}
			v, err := semver.NewVersion(depManifest.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "pluginsys: invalid version %q for %s", depManifest.Version, dep)
			}
			if !c.Check(v) {
				return nil, errors.Wrapf(ErrUnsatisfiedDependency, "%s requires %s%s, found %s", name, dep, constraint, depManifest.Version)
			}
		}
	}

	indegree := make(map[string]int, len(manifests))
	dependents := make(map[string][]string, len(manifests))
	for name := range manifests {
		indegree[name] = 0
	}
	for name, m := range manifests {
		for dep := range m.Dependencies {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		children := append([]string(nil), dependents[next]...)
		sort.Strings(children)
		for _, child := range children {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(manifests) {
		return nil, errors.Wrapf(ErrDependencyCycle, "%d of %d plugins form a cycle", len(manifests)-len(order), len(manifests))
	}
	return order, nil
}

// UnloadOrder reverses order, the required direction for tearing down a
// dependency closure: dependents before their dependencies.
func UnloadOrder(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}
