package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/avvaruyasaswini/Echo/internal/echo/app"
	"github.com/avvaruyasaswini/Echo/internal/echo/config"
	"github.com/avvaruyasaswini/Echo/internal/echo/observability"
	"github.com/avvaruyasaswini/Echo/internal/echo/version"
)

func main() {
	configPath := flag.String("config", "echo.yaml", "path to the YAML config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("echo " + version.Info())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize echo: %v\n", err)
		os.Exit(1)
	}
	defer application.Stop()

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running echo: %v\n", err)
		os.Exit(1)
	}
}
