package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	valid := AuditLog{Action: "permission.override.assign", Entity: "user_permission_overrides", EntityID: "u-1"}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.EntityID = ""
	assert.Error(t, missing.Validate())
}

func TestAuditLoggerWithoutPool(t *testing.T) {
	var logger *AuditLogger
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))

	n, err := NewAuditLogger(nil).Prune(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
