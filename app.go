package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/patroldash/dash"
	"github.com/kwv/patroldash/relay"
	"github.com/kwv/patroldash/tui"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *dash.Config
	Console    *dash.Console
	Channel    *dash.Channel
	MQTTClient *dash.MQTTClient
	Publisher  *dash.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	EnvFile      string
	HttpPort     int
	ViewWidth    int
	ViewHeight   int
	MqttMode     bool
	HttpMode     bool
	OutputFile   string
	RenderFormat string
	RenderWait   time.Duration
	Debug        bool

	// dial replaces the websocket dialer in tests.
	dial dash.DialFunc
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{ConfigFile: "config.yaml", RenderFormat: "raster", RenderWait: 15 * time.Second}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.EnvFile = opts.EnvFile
	a.HttpPort = opts.HttpPort
	a.ViewWidth = opts.ViewWidth
	a.ViewHeight = opts.ViewHeight
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.RenderWait = opts.RenderWait
	a.Debug = opts.Debug
}

// LoadConfig reads the env file and config file and applies flag overrides.
func (a *App) LoadConfig() (*dash.Config, error) {
	if a.EnvFile != "" {
		if err := dash.LoadEnvFile(a.EnvFile); err != nil {
			return nil, err
		}
	}
	cfg, err := dash.LoadConfigOrDefault(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv()

	if a.HttpPort > 0 {
		cfg.HTTP.Port = a.HttpPort
	}
	if a.ViewWidth > 0 {
		cfg.View.Width = a.ViewWidth
	}
	if a.ViewHeight > 0 {
		cfg.View.Height = a.ViewHeight
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a.Config = cfg
	return cfg, nil
}

// start builds the console, connects the transport channel and, in MQTT
// mode, the telemetry bridge. Everything stops when ctx is cancelled.
func (a *App) start(ctx context.Context) error {
	cfg := a.Config
	dash.SetDebug(a.Debug)

	a.Console = dash.NewConsole(ctx, dash.ConsoleOptions{
		Camera:     cfg.Camera,
		ViewWidth:  cfg.View.Width,
		ViewHeight: cfg.View.Height,
	})

	opts := []dash.ChannelOption{dash.WithReconnectDelay(cfg.ReconnectDelay)}
	if a.dial != nil {
		opts = append(opts, dash.WithDialer(a.dial))
	}
	a.Channel = dash.NewChannel(cfg.WebsocketURL(), a.Console, opts...)
	a.Console.SetSender(a.Channel)
	go func() {
		if err := a.Channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[WS] Channel stopped: %v", err)
		}
	}()

	if !a.MqttMode {
		return nil
	}

	mqttClient, err := dash.InitMQTT(cfg.MQTT, a.applyRemoteIntent)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if mqttClient == nil {
		return fmt.Errorf("MQTT mode needs mqtt.broker in %s or MQTT_BROKER", a.ConfigFile)
	}
	a.MQTTClient = mqttClient

	a.Publisher = dash.NewPublisher(mqttClient.GetClient(), mqttClient.Prefix())
	a.Console.Subscribe(a.Publisher.Observe)
	go a.Publisher.Run(ctx)
	fmt.Println("MQTT telemetry publisher initialized")
	return nil
}

// applyRemoteIntent runs an MQTT command through the console gating.
func (a *App) applyRemoteIntent(in dash.RemoteIntent) {
	if err := a.Console.ApplyIntent(in); err != nil {
		log.Printf("[MQTT] Remote intent %+v rejected: %v", in, err)
	}
}

func (a *App) stop() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// RunService connects to the control server and serves the dashboard over
// HTTP until interrupted.
func (a *App) RunService() error {
	fmt.Println("Starting patroldash service...")

	cfg, err := a.LoadConfig()
	if err != nil {
		return err
	}
	log.Printf("Control server: %s", cfg.WebsocketURL())

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.HTTP.Port),
		Handler:           newHTTPServer(a.Console, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] Starting server on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	fmt.Println("\nService Running")
	fmt.Println("===============")
	fmt.Printf("\nHTTP endpoints (port %d):\n", cfg.HTTP.Port)
	fmt.Println("  GET  /                 - Dashboard page")
	fmt.Println("  GET  /health           - Health check")
	fmt.Println("  GET  /status           - Console snapshot")
	fmt.Println("  GET  /live.png         - Map with robot marker (?w=&h=)")
	fmt.Println("  GET  /live.svg         - Same view as SVG")
	fmt.Println("  GET  /map.png          - Raw occupancy grid")
	fmt.Println("  GET  /pose.geojson     - Map footprint and robot position")
	fmt.Println("  GET  /video            - Redirect to the camera stream")
	fmt.Println("  POST /command/{name}   - forward, backward, left, right, stop")
	fmt.Println("  POST /mission/{type}   - return, repeat, single")
	fmt.Println("  POST /view/{mode}      - map, video")
	if a.MQTTClient != nil {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Publishing to: %s/{pose,status,telemetry}\n", a.MQTTClient.Prefix())
		fmt.Printf("  Commands from: %s\n", a.MQTTClient.CommandTopic())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] Shutdown: %v", err)
	}
	fmt.Println("Service stopped")
	return nil
}

// RunConsole runs the terminal operator console.
func (a *App) RunConsole() error {
	if _, err := a.LoadConfig(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Log lines would tear the alternate screen.
	if !a.Debug {
		dash.SetLogger(nil)
		log.SetOutput(io.Discard)
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.stop()

	return tui.Run(a.Console)
}

// RunRelay runs the control-server relay.
func (a *App) RunRelay() error {
	cfg, err := a.LoadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Relay listening on :%d (ws path /ws/realtime)\n", cfg.Relay.Port)
	return relay.ListenAndServe(ctx, cfg.Relay)
}

// RunRender connects, waits for the first map and writes the live view to
// OutputFile.
func (a *App) RunRender() error {
	cfg, err := a.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.stop()

	fmt.Printf("Waiting up to %v for a map from %s...\n", a.RenderWait, cfg.WebsocketURL())
	if err := a.waitForMap(ctx, a.RenderWait); err != nil {
		return err
	}
	if err := a.writeRender(a.OutputFile, cfg.View.Width, cfg.View.Height); err != nil {
		return err
	}
	fmt.Printf("Created: %s\n", a.OutputFile)
	return nil
}

// waitForMap blocks until the console holds a map.
func (a *App) waitForMap(ctx context.Context, timeout time.Duration) error {
	ready := make(chan struct{}, 1)
	a.Console.Subscribe(func(s dash.Snapshot) {
		if s.Map != nil {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	// A map may have landed before the subscription.
	if a.Console.Snapshot().Map != nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("no map received within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) writeRender(path string, w, h int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(a.RenderFormat) {
	case "vector", "svg":
		if err := a.Console.RenderSVG(f, w, h); err != nil {
			return fmt.Errorf("rendering SVG: %w", err)
		}
	case "raster", "png", "":
		img := a.Console.Render(w, h)
		if img == nil {
			return dash.ErrNoMap
		}
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("encoding PNG: %w", err)
		}
	default:
		return fmt.Errorf("unknown render format %q (raster or vector)", a.RenderFormat)
	}
	return nil
}
