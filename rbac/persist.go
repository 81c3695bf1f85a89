package rbac

import (
	"encoding/json"
	"os"

	"github.com/ncatbot/ncatbot-go/errors"
)

// roleState is the persisted shape of a single role.
type roleState struct {
	Parent string   `json:"parent,omitempty"`
	White  []string `json:"white"`
	Black  []string `json:"black"`
}

// userState is the persisted shape of a single user.
type userState struct {
	Roles []string `json:"roles"`
	White []string `json:"white"`
	Black []string `json:"black"`
}

// State is the full persisted RBAC document: declared permission paths,
// users with their roles and grant lists, and roles with their parent
// and grant lists.
type State struct {
	Permissions []string             `json:"permissions"`
	Users       map[string]userState `json:"users"`
	Roles       map[string]roleState `json:"roles"`
}

// Save snapshots the engine into a State value suitable for JSON
// encoding.
func (e *Engine) Save() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := State{
		Permissions: e.permissions.Paths(),
		Users:       make(map[string]userState, len(e.users)),
		Roles:       make(map[string]roleState, len(e.roles)),
	}

	for id, u := range e.users {
		roles := make([]string, 0, len(u.roles))
		for r := range u.roles {
			roles = append(roles, r)
		}
		state.Users[id] = userState{
			Roles: roles,
			White: grantPaths(&u.white),
			Black: grantPaths(&u.black),
		}
	}
	for name, r := range e.roles {
		state.Roles[name] = roleState{
			Parent: r.parent,
			White:  grantPaths(&r.white),
			Black:  grantPaths(&r.black),
		}
	}
	return state
}

func grantPaths(g *grantList) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.patterns))
	for i, p := range g.patterns {
		out[i] = p.String()
	}
	return out
}

// Restore replaces the engine's entire state with state, rebuilding the
// permission trie from its leaf-path list and every user/role grant list
// from its flat string lists.
func (e *Engine) Restore(state State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.permissions = NewTrie(true)
	for _, p := range state.Permissions {
		if err := e.permissions.AddPath(p); err != nil {
			return errors.Wrapf(err, "rbac: restore permission %q", p)
		}
	}

	e.roles = make(map[string]*role, len(state.Roles))
	for name, rs := range state.Roles {
		r := &role{name: name, parent: rs.Parent}
		for _, p := range rs.White {
			r.white.add(p)
		}
		for _, p := range rs.Black {
			r.black.add(p)
		}
		e.roles[name] = r
	}

	e.users = make(map[string]*user, len(state.Users))
	for id, us := range state.Users {
		u := &user{id: id, roles: make(map[string]struct{}, len(us.Roles))}
		for _, rn := range us.Roles {
			u.roles[rn] = struct{}{}
		}
		for _, p := range us.White {
			u.white.add(p)
		}
		for _, p := range us.Black {
			u.black.add(p)
		}
		e.users[id] = u
	}
	return nil
}

// SaveToFile writes the engine's state as indented JSON to path.
func (e *Engine) SaveToFile(path string) error {
	data, err := json.MarshalIndent(e.Save(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "rbac: marshal state")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "rbac: write state file %q", path)
	}
	return nil
}

// LoadFromFile reads a previously saved state document and restores it
// into the engine.
func (e *Engine) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "rbac: read state file %q", path)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrapf(err, "rbac: decode state file %q", path)
	}
	return e.Restore(state)
}
