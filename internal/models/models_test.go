package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDirectChannelIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "dm:alice:bob", DirectChannelID("alice", "bob"))
	assert.Equal(t, "dm:alice:bob", DirectChannelID("bob", "alice"))
	assert.Equal(t, "dm:alice:alice", DirectChannelID("alice", "alice"))
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleModerator))
	assert.True(t, RoleModerator.AtLeast(RoleModerator))
	assert.False(t, RoleUser.AtLeast(RoleModerator))

	assert.True(t, RoleAdmin.Outranks(RoleModerator))
	assert.False(t, RoleModerator.Outranks(RoleModerator))

	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("superuser").Valid())
}

func TestBanActiveAt(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, Ban{}.ActiveAt(now), "nil expiry means permanent")
	assert.True(t, Ban{ExpiresAt: &future}.ActiveAt(now))
	assert.False(t, Ban{ExpiresAt: &past}.ActiveAt(now))
}
