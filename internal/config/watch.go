package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/stackia/rtp2httpd/internal/logger"
)

// ReloadFunc receives the freshly-reloaded Config; the caller decides what
// to do with it (spec §6.2: "[services] edits trigger a non-disruptive
// service-table reload, without tearing down active clients").
type ReloadFunc func(cfg *Config)

// Watch mirrors the teacher's config/manage.go watch pattern: viper's
// built-in fsnotify integration (WatchConfig) re-reads and re-validates
// the file on every write, calling onReload with the new Config only when
// the file still parses and validates — a bad edit is logged and the
// previous Config keeps serving, so an operator typo never brings down
// running clients.
func Watch(v *viper.Viper, log *logger.Entry, onReload ReloadFunc) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("config: reload triggered by %s on %s", e.Op, e.Name)

		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Errorf("config: reload: decode failed, keeping previous config: %v", err)
			return
		}
		// viper cannot decode the [services.*] sections; read them the same
		// way Load does.
		services, err := loadServices(v.ConfigFileUsed())
		if err != nil {
			log.Errorf("config: reload: reading services failed, keeping previous config: %v", err)
			return
		}
		cfg.Services = services
		if err := Validate(&cfg); err != nil {
			log.Errorf("config: reload: validation failed, keeping previous config: %v", err)
			return
		}

		onReload(&cfg)
	})
	v.WatchConfig()
}
