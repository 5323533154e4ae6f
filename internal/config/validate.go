package config

import (
	"fmt"
	"net"
)

// Validate runs the cross-field checks spec §10.6 calls out as the reason
// this package hand-rolls validation instead of reaching for
// go-playground/validator: these are relations between fields (port range
// parity, address class, "only meaningful when X"), not per-field tag
// rules a reflection-based validator is built for.
func Validate(cfg *Config) error {
	if cfg.Bind.Port <= 0 || cfg.Bind.Port > 65535 {
		return fmt.Errorf("config: bind.port %d out of range", cfg.Bind.Port)
	}
	if cfg.Bind.Workers < 1 {
		return fmt.Errorf("config: bind.workers must be at least 1")
	}
	if err := resolveHostPort(net.JoinHostPort(cfg.Bind.Address, "0")); err != nil {
		return fmt.Errorf("config: bind.address %q invalid: %w", cfg.Bind.Address, err)
	}

	if cfg.Global.BufferPoolMaxSize > 0 && cfg.Global.BufferPoolInitial > cfg.Global.BufferPoolMaxSize {
		return fmt.Errorf("config: buffer_pool_initial (%d) exceeds buffer_pool_max_size (%d)",
			cfg.Global.BufferPoolInitial, cfg.Global.BufferPoolMaxSize)
	}

	if cfg.Global.RejoinInterval < 0 {
		return fmt.Errorf("config: rejoin_interval_seconds must be >= 0")
	}

	lo, hi, err := cfg.Global.FCCPortRange()
	if err != nil {
		return err
	}
	if lo != 0 || hi != 0 {
		if lo <= 0 || hi <= 0 || lo > 65535 || hi > 65535 {
			return fmt.Errorf("config: fcc_listen_port_range %q out of range", cfg.Global.FCCListenPortRange)
		}
		if hi < lo {
			return fmt.Errorf("config: fcc_listen_port_range %q has hi < lo", cfg.Global.FCCListenPortRange)
		}
		if (hi-lo+1)%2 != 0 {
			return fmt.Errorf("config: fcc_listen_port_range %q must span an even number of ports (RTP/RTCP pairing)", cfg.Global.FCCListenPortRange)
		}
	}

	for i, svcDef := range cfg.Services {
		if svcDef.Name == "" {
			return fmt.Errorf("config: services[%d] missing name", i)
		}
		if _, err := svcDef.BuildService(); err != nil {
			return err
		}
		if svcDef.Multicast != "" {
			host, _, err := net.SplitHostPort(svcDef.Multicast)
			if err == nil {
				if ip := net.ParseIP(host); ip != nil && !ip.IsMulticast() {
					return fmt.Errorf("config: service %s: %q is not a multicast address", svcDef.Name, host)
				}
			}
		}
	}

	if cfg.Global.VideoSnapshot && cfg.Global.FFmpegPath == "" {
		return fmt.Errorf("config: video_snapshot enabled but ffmpeg_path is empty")
	}

	if cfg.Global.ExternalM3UInterval < 0 {
		return fmt.Errorf("config: external_m3u_update_interval_seconds must be >= 0")
	}

	return nil
}
