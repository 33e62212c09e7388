package apierr

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

func TestFromErrorMapsKinds(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest:          perrors.Validation("submit", "missing target"),
		http.StatusNotFound:            perrors.NotFound("get", "job"),
		http.StatusConflict:            perrors.Conflict("submit", perrors.New("race")),
		http.StatusServiceUnavailable:  perrors.Infra("push", perrors.New("down")),
		http.StatusGatewayTimeout:      perrors.Timeout("hydrate", perrors.New("slow")),
		http.StatusInternalServerError: perrors.New("boom"),
	}
	for status, err := range cases {
		require.Equal(t, status, FromError(err).Status, err.Error())
	}
	require.Nil(t, FromError(nil))
}
