package service_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/service"
)

func TestParseMulticastTarget(t *testing.T) {
	ip, port, err := service.ParseMulticastTarget("239.253.64.120:5140")
	require.NoError(t, err)
	require.Equal(t, "239.253.64.120", ip.String())
	require.Equal(t, 5140, port)
}

func TestParseMulticastTargetRejectsUnicast(t *testing.T) {
	_, _, err := service.ParseMulticastTarget("10.0.0.1:5140")
	require.Error(t, err)
}

func TestInferFCCVariant(t *testing.T) {
	require.Equal(t, service.FCCTelecom, service.InferFCCVariant(15970))
	require.Equal(t, service.FCCHuawei, service.InferFCCVariant(6000))
	require.Equal(t, service.FCCTelecom, service.InferFCCVariant(9999))
}

func TestNewMulticastRTPWithFCC(t *testing.T) {
	ip, port, err := service.ParseMulticastTarget("239.253.64.120:5140")
	require.NoError(t, err)

	svc, err := service.NewMulticastRTP("ch1", ip, port, "10.255.14.152:15970", service.FCCUnset, 0)
	require.NoError(t, err)
	require.True(t, svc.UsesFCC())
	require.Equal(t, service.FCCTelecom, svc.FCCVariant)
}
