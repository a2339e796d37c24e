package seeders

import (
	"fmt"
	"testing"

	"schoolcore/database"
	"schoolcore/models"
	"schoolcore/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAdmin(t *testing.T) {
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	require.NoError(t, SeedAdmin(db, "root", "secret-pass"))
	require.NoError(t, SeedAdmin(db, "other", "secret-pass"))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
	assert.Equal(t, models.RoleAdmin, users[0].Role)
	assert.NoError(t, utils.CheckPassword("secret-pass", users[0].Password))
}

func TestSeedAdminSkipsWithoutCredentials(t *testing.T) {
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	require.NoError(t, SeedAdmin(db, "", ""))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Zero(t, count)
}
