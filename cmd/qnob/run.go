package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/mcp"
	"github.com/mbocsi/qnob/services"
	"github.com/mbocsi/qnob/web"
)

var (
	withMCP      bool
	simulateHost bool
	noAutoConn   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge with its web API",
	Long: `Run the bridge. The configured device and MQTT broker are connected on
start; everything else is driven through the web API on web.addr.

With --mcp the bridge also serves MCP tools on stdin/stdout.`,
	RunE: runBridge,
}

func init() {
	runCmd.Flags().BoolVar(&withMCP, "mcp", false, "serve MCP tools on stdio")
	runCmd.Flags().BoolVar(&simulateHost, "simulate-host", false, "use an in-memory mixer instead of PulseAudio and MPRIS")
	runCmd.Flags().BoolVar(&noAutoConn, "no-connect", false, "do not connect the configured device and broker on start")
	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, created, err := config.Ensure(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if created {
		slog.Info("Wrote default configuration", "path", configPath)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	settings, err := bridge.SettingsFrom(cfg)
	if err != nil {
		return err
	}

	volume, media, closeHost, err := hostAudio()
	if err != nil {
		return err
	}
	defer closeHost()

	mqtt := broker.NewChannel(cfg.MQTT.SenderTag, broker.NewQueue())
	coord := bridge.NewCoordinator(settings, volume, media, mqtt)

	store := services.NewConfigStore(configPath, cfg)
	serviceManager := services.NewServiceManager(coord, store, services.DefaultChannels())
	svc := serviceManager.GetServices()

	webClient := web.NewWebClient(svc, serviceManager.Notifier())
	httpServer := &http.Server{Addr: cfg.Web.Addr, Handler: webClient.Routes()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(ctx)
	})
	g.Go(func() error {
		slog.Info("Web API listening", "addr", cfg.Web.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if withMCP {
		mcpClient := mcp.NewMCPClient(svc, mcp.NewMCPServer(version))
		go func() {
			if err := mcpClient.Start(); err != nil {
				slog.Error("MCP server stopped", "error", err)
			}
		}()
	}
	if !noAutoConn {
		go autoConnect(ctx, svc, cfg)
	}

	return g.Wait()
}

// autoConnect opens the channels the configuration names. Failures are
// logged; the operator can retry from the web API.
func autoConnect(ctx context.Context, svc *services.ServiceContainer, cfg config.Config) {
	switch {
	case cfg.Device.SerialPort != "":
		if err := svc.Transport.ConnectSerial(ctx, cfg.Device.SerialPort, cfg.Device.BaudRate); err != nil {
			slog.Warn("Auto-connect to serial device failed", "port", cfg.Device.SerialPort, "error", err)
		}
	case cfg.Device.TCPHost != "":
		if err := svc.Transport.ConnectTCP(ctx, cfg.Device.TCPHost, cfg.Device.TCPPort); err != nil {
			slog.Warn("Auto-connect to TCP device failed", "host", cfg.Device.TCPHost, "error", err)
		}
	}
	if cfg.MQTT.Broker != "" {
		if err := svc.Transport.ConnectMQTT(ctx); err != nil {
			slog.Warn("Auto-connect to MQTT broker failed", "broker", cfg.MQTT.Broker, "error", err)
		}
	}
}

func hostAudio() (audio.VolumeController, audio.MediaController, func(), error) {
	if simulateHost {
		slog.Info("Using simulated host mixer")
		m := audio.NewMemory(50, audio.MediaState{Player: "simulated"})
		return m, m, func() {}, nil
	}
	mpris, err := audio.NewMPRIS()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return audio.NewPulse(), mpris, func() { mpris.Close() }, nil
}
