package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularInheritanceRejected(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddRole("a"))
	require.NoError(t, e.AddRole("b"))
	require.NoError(t, e.AddRole("c"))

	require.NoError(t, e.SetRoleInheritance("a", "b"))
	require.NoError(t, e.SetRoleInheritance("b", "c"))

	err := e.SetRoleInheritance("c", "a")
	assert.ErrorIs(t, err, ErrCircularInheritance)

	// Prior inheritance edges remain: a's parent is still b.
	require.NoError(t, e.SetRoleInheritance("a", "b"))
}

func TestBlackOverridesWhite(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddPermission("danger.run"))
	e.AddUser("u")

	require.NoError(t, e.Grant(SubjectUser, "u", "danger.run", White))
	require.NoError(t, e.Grant(SubjectUser, "u", "danger.run", Black))

	ok, err := e.Check("u", "danger.run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWhiteGrantsAccess(t *testing.T) {
	e := NewEngine()
	e.AddUser("u")
	require.NoError(t, e.Grant(SubjectUser, "u", "danger.run", White))

	ok, err := e.Check("u", "danger.run")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Check("u", "danger.other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInheritanceClosureGrantsThroughRole(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddRole("moderator"))
	require.NoError(t, e.Grant(SubjectRole, "moderator", "mod.kick", White))

	e.AssignRole("u", "moderator")
	ok, err := e.Check("u", "mod.kick")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoleBlackOverridesUserWhite(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddRole("restricted"))
	require.NoError(t, e.Grant(SubjectRole, "restricted", "danger.run", Black))

	e.AssignRole("u", "restricted")
	require.NoError(t, e.Grant(SubjectUser, "u", "danger.run", White))

	ok, err := e.Check("u", "danger.run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddPermission("danger.run"))
	require.NoError(t, e.AddRole("moderator"))
	require.NoError(t, e.Grant(SubjectRole, "moderator", "mod.kick", White))
	e.AssignRole("u", "moderator")
	require.NoError(t, e.Grant(SubjectUser, "u", "danger.run", Black))

	state := e.Save()

	restored := NewEngine()
	require.NoError(t, restored.Restore(state))

	ok, err := restored.Check("u", "mod.kick")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = restored.Check("u", "danger.run")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddRoleTwiceFails(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddRole("a"))
	assert.ErrorIs(t, e.AddRole("a"), ErrRoleExists)
}
