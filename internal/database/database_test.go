package database_test

import (
	"testing"

	"callcast/internal/database"
	"callcast/internal/database/dbtest"
	"callcast/internal/domain"
	"callcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedSystemMembersIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, database.SeedSystemMembers(db))

	var supers []models.Member
	require.NoError(t, db.Where("is_superuser = ?", true).Order("id").Find(&supers).Error)
	require.Len(t, supers, 2)
	assert.Equal(t, domain.SuperSystem, supers[0].Username)
	assert.Equal(t, domain.SuperAdmin, supers[1].Username)
	assert.Equal(t, domain.RoleAdmin, supers[0].Role)
}
