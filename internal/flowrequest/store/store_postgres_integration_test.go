//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"flowgate/internal/platform/database"
	"flowgate/pkg/testutil/containers"
)

func TestPostgresContract(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, database.Migrate(context.Background(), pg.DB))

	suite.Run(t, &ContractSuite{
		newTx: func() Tx { return NewPostgres(pg.DB) },
		reset: func() {
			require.NoError(t, pg.Truncate(context.Background(),
				"consent_confirmations", "confirmation_codes", "channels", "flow_requests", "profiles"))
		},
	})
}
