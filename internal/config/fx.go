package config

import (
	"go.uber.org/fx"
)

// Path is the config file supplied on the command line; empty means the default search paths.
type Path string

func provide(path Path) (Config, error) {
	return Load(string(path))
}

var Module = fx.Module("config",
	fx.Provide(provide),
)
