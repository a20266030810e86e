package authz

import (
	"testing"

	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanReadGap_AdminSeesEverything(t *testing.T) {
	scope := GapScope{ReporterID: "someone-else"}
	assert.True(t, CanReadGap("admin-1", models.RoleAdmin, scope))
	assert.True(t, CanReadGap("mgmt-1", models.RoleManagement, scope))
}

func TestCanReadGap_QAOpsOnlyOwnReports(t *testing.T) {
	scope := GapScope{ReporterID: "reporter-1"}
	assert.True(t, CanReadGap("reporter-1", models.RoleQAOps, scope))
	assert.False(t, CanReadGap("reporter-2", models.RoleQAOps, scope))
}

func TestCanReadGap_PocUnionOfAssigneeAndRoster(t *testing.T) {
	assignee := "poc-primary"
	scope := GapScope{
		ReporterID:   "reporter-1",
		AssignedToID: &assignee,
		PocUserIDs:   []string{"poc-secondary"},
	}

	assert.True(t, CanReadGap("poc-primary", models.RolePOC, scope))
	assert.True(t, CanReadGap("poc-secondary", models.RolePOC, scope))
	assert.False(t, CanReadGap("poc-unrelated", models.RolePOC, scope))
}

func TestCanManagePocRoster(t *testing.T) {
	primary := "poc-primary"
	assert.True(t, CanManagePocRoster("admin-1", models.RoleAdmin, &primary))
	assert.True(t, CanManagePocRoster("poc-primary", models.RolePOC, &primary))
	assert.False(t, CanManagePocRoster("poc-other", models.RolePOC, &primary))
	assert.False(t, CanManagePocRoster("poc-other", models.RolePOC, nil))
}

func TestCanRemovePoc(t *testing.T) {
	assert.True(t, CanRemovePoc("mgmt-1", models.RoleManagement, "anyone"))
	assert.True(t, CanRemovePoc("self-1", models.RolePOC, "self-1"))
	assert.False(t, CanRemovePoc("poc-1", models.RolePOC, "poc-2"))
}
