// Package config implements spec §6.2's configuration surface: a flat
// INI-style file with [global]/[bind]/[services] sections, a subset of the
// [global]/[bind] options also settable as long CLI flags (see BindFlags),
// grounded on nabbar-golib's
// viper/cobra wiring (nabbar-golib/viper, nabbar-golib/cobra/configure.go)
// adapted from its component-registry pattern to one flat struct, since
// this system has a handful of scalar options rather than a pluggable
// component list.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	ini "gopkg.in/ini.v1"

	"github.com/stackia/rtp2httpd/internal/service"
)

// Bind is the [bind] section: the address/port the HTTP front end listens
// on, and the worker-process fan-out.
type Bind struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Workers int    `mapstructure:"workers"`
}

// ServiceDef is one [services] entry: a named upstream, addressable either
// via config or (when AllowUdpxy is set on Global) inferred from the
// request path.
type ServiceDef struct {
	Name        string `mapstructure:"name" ini:"name"`
	Kind        string `mapstructure:"kind" ini:"kind"` // "rtp", "udp", "rtsp"
	Multicast   string `mapstructure:"multicast" ini:"multicast"`
	FCCServer   string `mapstructure:"fcc_server" ini:"fcc_server"`
	FCCType     string `mapstructure:"fcc_type" ini:"fcc_type"`
	FECPort     int    `mapstructure:"fec_port" ini:"fec_port"`
	RTSPURL     string `mapstructure:"rtsp_url" ini:"rtsp_url"`
	MulticastIf string `mapstructure:"multicast_interface" ini:"multicast_interface"`
	UnicastIf   string `mapstructure:"unicast_interface" ini:"unicast_interface"`
}

// Global is the [global] section: every option spec §6.2 lists outside of
// the listen address and the service table.
type Global struct {
	MaxClients int `mapstructure:"max_clients"`

	BufferPoolInitial int `mapstructure:"buffer_pool_initial"`
	BufferPoolMaxSize int `mapstructure:"buffer_pool_max_size"`

	FCCNatTraversal    string `mapstructure:"fcc_nat_traversal"`
	FCCListenPortRange string `mapstructure:"fcc_listen_port_range"`

	// FECColumns/FECRows size the SMPTE 2022-1 L x D column-parity matrix
	// (spec §4.6/§12) every FEC-enabled service shares; per-service matrix
	// dimensions aren't part of the configured surface, only whether FEC
	// is enabled at all (ServiceDef.FECPort != 0).
	FECColumns int `mapstructure:"fec_columns"`
	FECRows    int `mapstructure:"fec_rows"`

	MulticastInterface string `mapstructure:"multicast_interface"`
	UnicastInterface   string `mapstructure:"unicast_interface"`
	HTTPInterface      string `mapstructure:"http_interface"`
	RejoinInterval     int    `mapstructure:"rejoin_interval_seconds"`

	Token    string `mapstructure:"token"`
	Hostname string `mapstructure:"hostname"`

	StatusPagePath string `mapstructure:"status_page_path"`
	PlayerPagePath string `mapstructure:"player_page_path"`

	UdpxyCompat    bool `mapstructure:"udpxy_compat"`
	VideoSnapshot  bool `mapstructure:"video_snapshot"`
	FFmpegPath     string `mapstructure:"ffmpeg_path"`
	FFmpegArgs     string `mapstructure:"ffmpeg_args"`

	ExternalM3UURL      string `mapstructure:"external_m3u_url"`
	ExternalM3UInterval int    `mapstructure:"external_m3u_update_interval_seconds"`

	Verbosity string `mapstructure:"verbosity"`

	SaturatedDisconnectSeconds int `mapstructure:"saturated_disconnect_seconds"`

	ControlSocketPath string `mapstructure:"control_socket_path"`
}

// Config is the fully parsed, validated configuration tree.
type Config struct {
	Global   Global       `mapstructure:"global"`
	Bind     Bind         `mapstructure:"bind"`
	Services []ServiceDef `mapstructure:"services"`
}

// DefaultPath resolves "~/.rtp2httpd/rtp2httpd.ini" the way the teacher's
// cobra.getDefaultPath resolves a home-relative config path.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return home + "/.rtp2httpd/rtp2httpd.ini", nil
}

// Defaults applies spec-documented defaults (§4.6's rejoin window, §6.2's
// paths) before a config file or flags are layered on.
func Defaults(v *viper.Viper) {
	v.SetDefault("global.max_clients", 1000)
	v.SetDefault("global.buffer_pool_initial", 256)
	v.SetDefault("global.buffer_pool_max_size", 8192)
	v.SetDefault("global.fcc_nat_traversal", "telecom")
	v.SetDefault("global.fec_columns", 4)
	v.SetDefault("global.fec_rows", 10)
	v.SetDefault("global.rejoin_interval_seconds", 0) // off by default per spec §4.6
	v.SetDefault("global.status_page_path", "/status")
	v.SetDefault("global.player_page_path", "/player")
	v.SetDefault("global.udpxy_compat", true)
	v.SetDefault("global.video_snapshot", false)
	v.SetDefault("global.ffmpeg_path", "ffmpeg")
	v.SetDefault("global.ffmpeg_args", "-f mjpeg -frames:v 1 -")
	v.SetDefault("global.verbosity", "info")
	v.SetDefault("global.saturated_disconnect_seconds", 15)
	v.SetDefault("global.control_socket_path", "/var/run/rtp2httpd.sock")

	v.SetDefault("bind.address", "0.0.0.0")
	v.SetDefault("bind.port", 5140)
	v.SetDefault("bind.workers", 1)
}

// BindFlags registers long CLI flags for a subset of the [global]/[bind]
// options, the way the teacher's cobra wiring binds viper keys to pflag
// flags so either source may set a value (flags win, per viper's usual
// precedence). buffer_pool_initial, fec_columns, fec_rows, http_interface,
// status_page_path, player_page_path, ffmpeg_args,
// external_m3u_update_interval_seconds, saturated_disconnect_seconds and
// control_socket_path have no flag and are set only from the config file.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Int("max-clients", v.GetInt("global.max_clients"), "maximum concurrent HTTP clients")
	flags.Int("buffer-pool-max-size", v.GetInt("global.buffer_pool_max_size"), "maximum buffer pool slots")
	flags.String("fcc-nat-traversal", v.GetString("global.fcc_nat_traversal"), "FCC NAT traversal mode")
	flags.String("fcc-listen-port-range", v.GetString("global.fcc_listen_port_range"), "low-hi UDP port range for FCC unicast bursts")
	flags.String("multicast-interface", v.GetString("global.multicast_interface"), "interface used for multicast joins")
	flags.String("unicast-interface", v.GetString("global.unicast_interface"), "interface used for FCC/FEC unicast sockets")
	flags.Int("rejoin-interval", v.GetInt("global.rejoin_interval_seconds"), "multicast rejoin interval in seconds (0 disables)")
	flags.String("token", v.GetString("global.token"), "shared auth token")
	flags.String("hostname", v.GetString("global.hostname"), "required Host header value")
	flags.Bool("udpxy-compat", v.GetBool("global.udpxy_compat"), "allow udpxy-compatible inferred routes")
	flags.Bool("video-snapshot", v.GetBool("global.video_snapshot"), "enable JPEG snapshot requests")
	flags.String("ffmpeg-path", v.GetString("global.ffmpeg_path"), "ffmpeg binary used for snapshot decoding")
	flags.String("external-m3u", v.GetString("global.external_m3u_url"), "external M3U playlist URL to mirror")
	flags.String("verbosity", v.GetString("global.verbosity"), "log level")

	flags.String("listen", v.GetString("bind.address"), "listen address")
	flags.Int("port", v.GetInt("bind.port"), "listen port")
	flags.Int("workers", v.GetInt("bind.workers"), "worker process count")

	_ = v.BindPFlag("global.max_clients", flags.Lookup("max-clients"))
	_ = v.BindPFlag("global.buffer_pool_max_size", flags.Lookup("buffer-pool-max-size"))
	_ = v.BindPFlag("global.fcc_nat_traversal", flags.Lookup("fcc-nat-traversal"))
	_ = v.BindPFlag("global.fcc_listen_port_range", flags.Lookup("fcc-listen-port-range"))
	_ = v.BindPFlag("global.multicast_interface", flags.Lookup("multicast-interface"))
	_ = v.BindPFlag("global.unicast_interface", flags.Lookup("unicast-interface"))
	_ = v.BindPFlag("global.rejoin_interval_seconds", flags.Lookup("rejoin-interval"))
	_ = v.BindPFlag("global.token", flags.Lookup("token"))
	_ = v.BindPFlag("global.hostname", flags.Lookup("hostname"))
	_ = v.BindPFlag("global.udpxy_compat", flags.Lookup("udpxy-compat"))
	_ = v.BindPFlag("global.video_snapshot", flags.Lookup("video-snapshot"))
	_ = v.BindPFlag("global.ffmpeg_path", flags.Lookup("ffmpeg-path"))
	_ = v.BindPFlag("global.external_m3u_url", flags.Lookup("external-m3u"))
	_ = v.BindPFlag("global.verbosity", flags.Lookup("verbosity"))
	_ = v.BindPFlag("bind.address", flags.Lookup("listen"))
	_ = v.BindPFlag("bind.port", flags.Lookup("port"))
	_ = v.BindPFlag("bind.workers", flags.Lookup("workers"))
}

// Load reads path (an INI file, parsed via viper's "ini" type which wraps
// gopkg.in/ini.v1) into v, layering over whatever defaults/flags are
// already bound, then unmarshals [global]/[bind] and validates the result.
// [services] entries are one subsection per service ("[services.news]",
// spec §6.2's "services" section made structured the way ini.v1 nests
// subsections), so they are read straight from ini.v1 rather than through
// viper's flat key/value model, which cannot decode a repeated section
// into a slice.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	services, err := loadServices(path)
	if err != nil {
		return nil, err
	}
	cfg.Services = services

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadServices reads every "services.<name>" subsection directly via
// ini.v1, since viper's ini backend flattens sections into dotted keys
// rather than exposing a section list.
func loadServices(path string) ([]ServiceDef, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var out []ServiceDef
	for _, sec := range f.Sections() {
		const prefix = "services."
		if !strings.HasPrefix(sec.Name(), prefix) {
			continue
		}
		name := strings.TrimPrefix(sec.Name(), prefix)

		var def ServiceDef
		if err := sec.MapTo(&def); err != nil {
			return nil, fmt.Errorf("config: section [%s]: %w", sec.Name(), err)
		}
		if def.Name == "" {
			def.Name = name
		}
		out = append(out, def)
	}
	return out, nil
}

// FCCPortRange parses global.fcc_listen_port_range ("lo-hi") into bounds;
// an empty string means ephemeral allocation (spec §4.2).
func (g Global) FCCPortRange() (lo, hi int, err error) {
	if g.FCCListenPortRange == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(g.FCCListenPortRange, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: fcc_listen_port_range %q must be \"lo-hi\"", g.FCCListenPortRange)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &lo); err != nil {
		return 0, 0, fmt.Errorf("config: fcc_listen_port_range %q: %w", g.FCCListenPortRange, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &hi); err != nil {
		return 0, 0, fmt.Errorf("config: fcc_listen_port_range %q: %w", g.FCCListenPortRange, err)
	}
	return lo, hi, nil
}

// BuildService constructs a service.Service from one [services] entry.
func (d ServiceDef) BuildService() (*service.Service, error) {
	switch strings.ToLower(d.Kind) {
	case "rtp":
		ip, port, err := service.ParseMulticastTarget(d.Multicast)
		if err != nil {
			return nil, fmt.Errorf("config: service %s: %w", d.Name, err)
		}
		variant := service.FCCUnset
		switch strings.ToLower(d.FCCType) {
		case "telecom":
			variant = service.FCCTelecom
		case "huawei":
			variant = service.FCCHuawei
		}
		svc, err := service.NewMulticastRTP(d.Name, ip, port, d.FCCServer, variant, d.FECPort)
		if err != nil {
			return nil, fmt.Errorf("config: service %s: %w", d.Name, err)
		}
		svc.MulticastInterface = d.MulticastIf
		svc.UnicastInterface = d.UnicastIf
		return svc, nil

	case "udp":
		ip, port, err := service.ParseMulticastTarget(d.Multicast)
		if err != nil {
			return nil, fmt.Errorf("config: service %s: %w", d.Name, err)
		}
		svc := service.NewMulticastUDP(d.Name, ip, port)
		svc.MulticastInterface = d.MulticastIf
		return svc, nil

	case "rtsp":
		u, err := url.Parse(d.RTSPURL)
		if err != nil {
			return nil, fmt.Errorf("config: service %s: invalid rtsp_url %q: %w", d.Name, d.RTSPURL, err)
		}
		return service.NewRTSP(d.Name, u), nil

	default:
		return nil, fmt.Errorf("config: service %s: unknown kind %q", d.Name, d.Kind)
	}
}

// resolveHostPort validates "host:port" shapes shared by bind/interface
// options; used by Validate below.
func resolveHostPort(s string) error {
	if s == "" {
		return nil
	}
	_, _, err := net.SplitHostPort(s)
	return err
}
