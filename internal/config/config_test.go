package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/config"
)

const sampleINI = `
[global]
max_clients = 500
token = s3cr3t
hostname = iptv.example.com
udpxy_compat = true
video_snapshot = true
ffmpeg_path = /usr/bin/ffmpeg
fcc_listen_port_range = 16000-16009

[bind]
address = 0.0.0.0
port = 8080
workers = 2

[services.news]
kind = rtp
multicast = 239.253.64.120:5140
fcc_server = 10.255.14.152:15970
`

func writeSample(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rtp2httpd.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newViper() *viper.Viper {
	v := viper.New()
	config.Defaults(v)
	return v
}

func TestLoadParsesGlobalBindSections(t *testing.T) {
	path := writeSample(t, sampleINI)
	v := newViper()

	cfg, err := config.Load(v, path)
	require.NoError(t, err)

	require.Equal(t, 500, cfg.Global.MaxClients)
	require.Equal(t, "s3cr3t", cfg.Global.Token)
	require.Equal(t, "0.0.0.0", cfg.Bind.Address)
	require.Equal(t, 8080, cfg.Bind.Port)
	require.Equal(t, 2, cfg.Bind.Workers)

	require.Len(t, cfg.Services, 1)
	require.Equal(t, "news", cfg.Services[0].Name)
	require.Equal(t, "rtp", cfg.Services[0].Kind)
	svc, err := cfg.Services[0].BuildService()
	require.NoError(t, err)
	require.True(t, svc.UsesFCC())
}

func TestLoadAppliesDefaultsForUnsetOptions(t *testing.T) {
	path := writeSample(t, "[bind]\nport = 5140\n")
	v := newViper()

	cfg, err := config.Load(v, path)
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.Global.MaxClients)
	require.Equal(t, "/status", cfg.Global.StatusPagePath)
	require.True(t, cfg.Global.UdpxyCompat)
}

func TestFCCPortRangeParsing(t *testing.T) {
	g := config.Global{FCCListenPortRange: "16000-16009"}
	lo, hi, err := g.FCCPortRange()
	require.NoError(t, err)
	require.Equal(t, 16000, lo)
	require.Equal(t, 16009, hi)

	empty := config.Global{}
	lo, hi, err = empty.FCCPortRange()
	require.NoError(t, err)
	require.Zero(t, lo)
	require.Zero(t, hi)
}

func TestValidateRejectsOddPortRange(t *testing.T) {
	cfg := &config.Config{
		Bind:   config.Bind{Address: "0.0.0.0", Port: 5140, Workers: 1},
		Global: config.Global{FCCListenPortRange: "16000-16008"},
	}
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsUnicastServiceAddress(t *testing.T) {
	cfg := &config.Config{
		Bind:   config.Bind{Address: "0.0.0.0", Port: 5140, Workers: 1},
		Global: config.Global{},
		Services: []config.ServiceDef{
			{Name: "bad", Kind: "rtp", Multicast: "10.0.0.1:5140"},
		},
	}
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsSnapshotWithoutFFmpegPath(t *testing.T) {
	cfg := &config.Config{
		Bind:   config.Bind{Address: "0.0.0.0", Port: 5140, Workers: 1},
		Global: config.Global{VideoSnapshot: true},
	}
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestServiceDefBuildServiceInfersFCCVariant(t *testing.T) {
	def := config.ServiceDef{
		Name:      "news",
		Kind:      "rtp",
		Multicast: "239.253.64.120:5140",
		FCCServer: "10.255.14.152:15970",
	}
	svc, err := def.BuildService()
	require.NoError(t, err)
	require.True(t, svc.UsesFCC())
}
