package main

import (
	"log/slog"
	"os"

	"github.com/zoosonics/sawcall-go/cmd"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		logging.Init()
		logging.Fatal("error loading configuration", "error", err)
	}

	logging.Init()
	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
		logging.SetLevel(level)
	}

	if settings.Main.Log.Enabled {
		closeLog, err := logging.EnableFileLogging(settings.Main.Log.Path, settings.Main.Name, level)
		if err != nil {
			logging.Warn("could not enable file logging",
				"path", settings.Main.Log.Path, "error", err)
		} else {
			defer closeLog()
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
