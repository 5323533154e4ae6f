package ingress_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/ingress"
)

func TestOpenUnicastEphemeral(t *testing.T) {
	conn, err := ingress.OpenUnicast(0, 0)
	require.NoError(t, err)
	defer conn.Close()
	require.NotEmpty(t, conn.LocalAddr().String())
}

func TestOpenUnicastWithinRange(t *testing.T) {
	conn, err := ingress.OpenUnicast(20000, 20010)
	require.NoError(t, err)
	defer conn.Close()
}
