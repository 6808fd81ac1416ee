package main

import (
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/plugin"
	aptgetplugin "github.com/gridci/gridci/internal/plugins/aptget"
	compileplugin "github.com/gridci/gridci/internal/plugins/compile"
	pipinstallplugin "github.com/gridci/gridci/internal/plugins/pipinstall"
	scriptplugin "github.com/gridci/gridci/internal/plugins/script"
	snapshotplugin "github.com/gridci/gridci/internal/plugins/snapshot"
	symlinkplugin "github.com/gridci/gridci/internal/plugins/symlink"
)

// newRegistry wires up every built-in step plugin.
func newRegistry(log *logger.Logger) (*plugin.Registry, error) {
	registry := plugin.NewRegistry(log)

	plugins := []plugin.Plugin{
		aptgetplugin.New(),
		pipinstallplugin.New(),
		scriptplugin.New(),
		snapshotplugin.New(),
		symlinkplugin.New(),
		compileplugin.New(log),
	}
	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
