package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// userSettings are machine-level defaults layered under command flags.
// They come from ~/.config/gridci/settings.yaml and GRIDCI_* environment
// variables; a missing file just means defaults.
type userSettings struct {
	Verbose  bool
	Parallel int
	Timeout  int
}

func loadSettings() userSettings {
	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GRIDCI")
	v.AutomaticEnv()

	v.SetDefault("verbose", false)
	v.SetDefault("parallel", 0)
	v.SetDefault("timeout", 0)

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "gridci"))
	}
	_ = v.ReadInConfig()

	return userSettings{
		Verbose:  v.GetBool("verbose"),
		Parallel: v.GetInt("parallel"),
		Timeout:  v.GetInt("timeout"),
	}
}
