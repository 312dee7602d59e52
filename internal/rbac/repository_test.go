package rbac

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestLockedTransactionsReadCommitted(t *testing.T) {
	opts := NewRepository(nil, 2*time.Second).lockedTxOptions()
	assert.Equal(t, pgx.ReadCommitted, opts.IsoLevel)
	assert.Equal(t, 2*time.Second, opts.LockTimeout)
}
