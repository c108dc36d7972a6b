package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile   string
	EnvFile      string
	HttpPort     int
	ViewWidth    int
	ViewHeight   int
	MqttMode     bool
	HttpMode     bool
	ConsoleMode  bool
	RelayMode    bool
	RenderOnly   bool
	OutputFile   string
	RenderFormat string
	RenderWait   time.Duration
	Debug        bool
}

// Runner is implemented by App. Tests substitute a mock.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunConsole() error
	RunRelay() error
	RunRender() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("patroldash: %v", err)
	}
}

// run parses args and dispatches to the selected mode.
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("patroldash", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "Optional KEY=VALUE file loaded before env overrides")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve the dashboard over HTTP")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, 8080)")
	fs.IntVar(&opts.ViewWidth, "view-width", 0, "Live view width in pixels (default from config)")
	fs.IntVar(&opts.ViewHeight, "view-height", 0, "Live view height in pixels (default from config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Bridge telemetry and remote commands over MQTT")
	fs.BoolVar(&opts.ConsoleMode, "tui", false, "Run the terminal operator console")
	fs.BoolVar(&opts.RelayMode, "relay", false, "Run the control-server relay instead of the dashboard")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Wait for the first map, write the live view and exit")
	fs.StringVar(&opts.OutputFile, "output", "live.png", "Output file for --render mode")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format for --render: raster or vector")
	fs.DurationVar(&opts.RenderWait, "wait", 15*time.Second, "How long --render waits for a map")
	fs.BoolVar(&opts.Debug, "debug", false, "Log every dropped frame and MQTT publish")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "patroldash version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.RelayMode:
		return app.RunRelay()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.ConsoleMode:
		return app.RunConsole()
	case opts.HttpMode || opts.MqttMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "patroldash service starting...")
	fmt.Fprintln(out, "Use --http to serve the dashboard (add --mqtt for the telemetry bridge)")
	fmt.Fprintln(out, "Use --tui for the terminal console")
	fmt.Fprintln(out, "Use --render to write a single live view and exit")
	fmt.Fprintln(out, "Use --relay to run the control-server relay")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - server, camera, view, MQTT and relay settings")
	fmt.Fprintln(out, "  .env        - optional overrides (PATROLDASH_WS_URL, MQTT_BROKER, ...)")
	return app.RunService()
}
