package main

import "github.com/kestrel-os/kcore/internal/config"

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(cfgPath)
}
