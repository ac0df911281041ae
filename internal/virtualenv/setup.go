// SPDX-License-Identifier: MPL-2.0

package virtualenv

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/pystep/internal/environ"
)

// ErrInstallationNotFound is reported when a named installation is not in
// the catalog.
var ErrInstallationNotFound = errors.New("virtualenv installation not found")

type (
	// Catalog resolves named installations to their home paths.
	Catalog interface {
		Lookup(name string) (home string, ok bool)
	}

	// CatalogMap is a Catalog backed by a map.
	CatalogMap map[string]string

	// Setup is an environment setup step activating one virtualenv, given
	// either by catalog Name or directly by Home. With neither set it does
	// nothing.
	Setup struct {
		Name    string
		Home    string
		Catalog Catalog
	}
)

// Lookup implements Catalog.
func (m CatalogMap) Lookup(name string) (string, bool) {
	home, ok := m[name]
	return home, ok
}

// Setup resolves the installation for the build node and environment and
// applies it. A missing catalog entry is a fatal configuration problem and
// returns false; resolution failures are returned as errors.
func (s Setup) Setup(ctx context.Context, env *environ.Env, sc environ.SetupContext) (bool, error) {
	if s.Name == "" && s.Home == "" {
		return true, nil
	}

	home := s.Home
	if s.Name != "" {
		var found bool
		if s.Catalog != nil {
			home, found = s.Catalog.Lookup(s.Name)
		}
		if !found {
			if sc.Listener != nil {
				sc.Listener.Diagnostic(fmt.Errorf("%w: %q", ErrInstallationNotFound, s.Name))
			}
			return false, nil
		}
	}

	inst, err := New(s.Name, home).Resolve(ctx, sc.Node, env)
	if err != nil {
		return false, err
	}
	inst.Apply(env)

	if sc.Listener != nil {
		_, _ = fmt.Fprintf(sc.Listener, "Using virtualenv %s\n", inst.Home())
	}
	return true, nil
}
