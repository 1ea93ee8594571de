package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func TestAuditLedgerRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("SAWMILL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SAWMILL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	ledger, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ledger.Close()
	})

	stamp := time.Now().UnixNano()
	actor := fmt.Sprintf("usr_audit_it_%d", stamp)
	t.Cleanup(func() {
		_, _ = ledger.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE actor_id = $1`, actor)
	})

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, action := range []string{"update_order_status", "refund_order"} {
		err := ledger.CreateAuditLog(ctx, domain.AuditLog{
			ID:         fmt.Sprintf("audit_it_%d_%d", stamp, i),
			ActorID:    actor,
			ActorEmail: "admin@sawmill.local",
			ActorRole:  domain.RoleAdmin,
			Action:     action,
			EntityType: "order",
			EntityID:   "ord_it",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	err = ledger.CreateAuditLog(ctx, domain.AuditLog{ID: fmt.Sprintf("audit_it_%d_0", stamp), ActorID: actor, Action: "dup", CreatedAt: base})
	require.ErrorIs(t, err, store.ErrConflict)

	logs, err := ledger.ListAuditLogs(ctx, base.Add(-time.Second), base.Add(time.Minute), 10)
	require.NoError(t, err)

	mine := make([]domain.AuditLog, 0, 2)
	for _, entry := range logs {
		if entry.ActorID == actor {
			mine = append(mine, entry)
		}
	}
	require.Len(t, mine, 2)
	require.Equal(t, "refund_order", mine[0].Action)
	require.Equal(t, "order", mine[1].EntityType)
}
