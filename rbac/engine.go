// Package rbac implements path-structured permission storage with
// wildcard matching, role inheritance, and user/role black/white grant
// lists where black always overrides white.
package rbac

import (
	"sync"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Mode selects which list a grant or revoke targets.
type Mode int

const (
	White Mode = iota
	Black
)

// SubjectKind distinguishes a grant/revoke target.
type SubjectKind int

const (
	SubjectUser SubjectKind = iota
	SubjectRole
)

// DefaultRole is auto-created before the first user is added, and is
// the role every auto-created user starts with.
const DefaultRole = "default"

var (
	ErrRoleNotFound         = errors.New("rbac: role not found")
	ErrRoleExists           = errors.New("rbac: role already exists")
	ErrCircularInheritance  = errors.New("rbac: circular role inheritance")
	ErrInvalidPermissionPath = errors.New("rbac: invalid permission path")
)

type grantList struct {
	mu       sync.RWMutex
	patterns []PermissionPath
}

func (g *grantList) add(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patterns = append(g.patterns, NewPath(path))
}

func (g *grantList) remove(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range g.patterns {
		if p.String() == path {
			g.patterns = append(g.patterns[:i], g.patterns[i+1:]...)
			return true
		}
	}
	return false
}

func (g *grantList) matchAny(path string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.patterns {
		ok, err := p.MatchingPath(path)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type role struct {
	name   string
	parent string // "" means no parent
	white  grantList
	black  grantList
}

type user struct {
	id    string
	roles map[string]struct{}
	white grantList
	black grantList
}

// Engine is the RBAC subsystem: declared permissions, users, roles, and
// their grant lists.
type Engine struct {
	mu          sync.Mutex
	permissions *Trie
	users       map[string]*user
	roles       map[string]*role
}

// NewEngine constructs an empty Engine. The default role does not exist
// until the first AddUser/auto-create call, per the invariant that the
// default role is created before any user.
func NewEngine() *Engine {
	return &Engine{
		permissions: NewTrie(true),
		users:       make(map[string]*user),
		roles:       make(map[string]*role),
	}
}

// AddPermission declares path as a valid permission path. Wildcards are
// rejected (ErrWildcardInRegistry, wrapped as ErrInvalidPermissionPath).
func (e *Engine) AddPermission(path string) error {
	if err := e.permissions.AddPath(path); err != nil {
		return errors.Wrapf(ErrInvalidPermissionPath, "%v", err)
	}
	return nil
}

// RemovePermission un-declares path, pruning now-childless ancestors.
// Existing grants referencing path are left untouched — a grant for a
// permission that's no longer declared simply never matches a Check
// against the (now undeclared) registry-side concern, since Check
// evaluates grant lists directly and never consults the registry.
func (e *Engine) RemovePermission(path string) {
	e.permissions.DelPath(path, true)
}

// AddUser registers a user, assigning it the default role (creating the
// default role first if it doesn't exist yet). Idempotent.
func (e *Engine) AddUser(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addUserLocked(id)
}

func (e *Engine) addUserLocked(id string) *user {
	if u, ok := e.users[id]; ok {
		return u
	}
	e.ensureRoleLocked(DefaultRole)
	u := &user{id: id, roles: map[string]struct{}{DefaultRole: {}}}
	e.users[id] = u
	return u
}

func (e *Engine) ensureRoleLocked(name string) *role {
	if r, ok := e.roles[name]; ok {
		return r
	}
	r := &role{name: name}
	e.roles[name] = r
	return r
}

// AddRole declares a role. Returns ErrRoleExists if it's already
// present.
func (e *Engine) AddRole(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.roles[name]; ok {
		return errors.Wrapf(ErrRoleExists, "%q", name)
	}
	e.roles[name] = &role{name: name}
	return nil
}

// AssignRole gives user an additional role. The user and role are
// auto-created if absent.
func (e *Engine) AssignRole(userID, roleName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.addUserLocked(userID)
	e.ensureRoleLocked(roleName)
	u.roles[roleName] = struct{}{}
}

// UnassignRole removes a role from a user. No-op if either is absent.
func (e *Engine) UnassignRole(userID, roleName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if u, ok := e.users[userID]; ok {
		delete(u.roles, roleName)
	}
}

// SetRoleInheritance makes parent the single parent of child. Rejects a
// cycle by walking the would-be resulting parent chain starting at
// parent; on rejection the existing inheritance edge (if any) is left
// untouched.
func (e *Engine) SetRoleInheritance(child, parent string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	childRole := e.ensureRoleLocked(child)
	e.ensureRoleLocked(parent)

	seen := map[string]bool{child: true}
	cursor := parent
	for cursor != "" {
		if seen[cursor] {
			return errors.Wrapf(ErrCircularInheritance, "%s -> %s", child, parent)
		}
		seen[cursor] = true
		next, ok := e.roles[cursor]
		if !ok {
			break
		}
		cursor = next.parent
	}

	childRole.parent = parent
	return nil
}

// Grant adds path to the white or black list of the given subject,
// auto-creating the user or role if it doesn't exist yet.
func (e *Engine) Grant(kind SubjectKind, id, path string, mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.grantListLocked(kind, id, true)
	if err != nil {
		return err
	}
	if mode == Black {
		list.black.add(path)
	} else {
		list.white.add(path)
	}
	return nil
}

// Revoke removes path from the white or black list of the given
// subject. Returns false if it wasn't present.
func (e *Engine) Revoke(kind SubjectKind, id, path string, mode Mode) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.grantListLocked(kind, id, false)
	if err != nil {
		return false, err
	}
	if mode == Black {
		return list.black.remove(path), nil
	}
	return list.white.remove(path), nil
}

type grantTarget struct {
	white *grantList
	black *grantList
}

func (e *Engine) grantListLocked(kind SubjectKind, id string, create bool) (grantTarget, error) {
	switch kind {
	case SubjectUser:
		u := e.users[id]
		if u == nil {
			if !create {
				return grantTarget{}, errors.Newf("rbac: unknown user %q", id)
			}
			u = e.addUserLocked(id)
		}
		return grantTarget{white: &u.white, black: &u.black}, nil
	case SubjectRole:
		r := e.roles[id]
		if r == nil {
			if !create {
				return grantTarget{}, errors.Wrapf(ErrRoleNotFound, "%q", id)
			}
			r = e.ensureRoleLocked(id)
		}
		return grantTarget{white: &r.white, black: &r.black}, nil
	default:
		return grantTarget{}, errors.Newf("rbac: unknown subject kind %v", kind)
	}
}

// Check resolves whether user has path: auto-creates the user with the
// default role if absent, computes the closed role set by walking
// parent links (cycle-guarded defensively even though SetRoleInheritance
// already rejects cycles at set time), and applies black-overrides-white
// resolution across the user and every ancestor role.
func (e *Engine) Check(userID, path string) (bool, error) {
	e.mu.Lock()
	u := e.addUserLocked(userID)
	lists := []*grantList{&u.white}
	blackLists := []*grantList{&u.black}

	seen := map[string]bool{}
	var walk func(string)
	walk = func(roleName string) {
		if seen[roleName] {
			return
		}
		seen[roleName] = true
		r, ok := e.roles[roleName]
		if !ok {
			return
		}
		lists = append(lists, &r.white)
		blackLists = append(blackLists, &r.black)
		if r.parent != "" {
			walk(r.parent)
		}
	}
	for roleName := range u.roles {
		walk(roleName)
	}
	e.mu.Unlock()

	for _, bl := range blackLists {
		hit, err := bl.matchAny(path)
		if err != nil {
			return false, err
		}
		if hit {
			logger.RBACDebugw("permission denied by black list", logger.FieldPermPath, path, "user", userID)
			return false, nil
		}
	}
	for _, wl := range lists {
		hit, err := wl.matchAny(path)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}
