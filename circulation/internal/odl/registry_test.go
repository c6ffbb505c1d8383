package odl_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odl-go/circulation-service/circulation/internal/model"
	"github.com/odl-go/circulation-service/circulation/internal/odl"
)

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()
	r := odl.NewRegistry()

	for _, p := range []model.Protocol{model.ProtocolODL, model.ProtocolODL2} {
		client, err := r.Resolve(p, odl.Config{}, zap.NewNop())
		require.NoError(t, err, string(p))
		require.NotNil(t, client)
	}

	_, err := r.Resolve(model.Protocol("OPDS"), odl.Config{}, zap.NewNop())
	require.Error(t, err)
}
