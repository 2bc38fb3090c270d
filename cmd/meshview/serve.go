package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"meshview/internal/bus"
	"meshview/internal/command"
	"meshview/internal/config"
	"meshview/internal/cycle"
	"meshview/internal/handler"
	"meshview/internal/hub"
	"meshview/internal/ingest"
	"meshview/internal/platform/clock"
	"meshview/internal/probe"
	"meshview/internal/service"
	"meshview/internal/topology"
	"meshview/internal/tui"
	"meshview/internal/watcher"
)

type serveOptions struct {
	addr    string
	broker  string
	withTUI bool
	logFile string
}

func newServeCmd(configPath *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Track the mesh and serve the live topology",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(*configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&opts.broker, "broker", "", "MQTT broker URL (overrides config)")
	cmd.Flags().BoolVar(&opts.withTUI, "tui", false, "show the terminal node list")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "meshview.log", "log destination while the terminal list is shown")
	return cmd
}

func runServe(configPath string, opts serveOptions) error {
	if opts.withTUI {
		f, err := tea.LogToFile(opts.logFile, "meshview")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	log.Println("Starting meshview...")

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if opts.broker != "" {
		cfg.MQTT.Broker = opts.broker
	}
	if path != "" {
		log.Printf("Config loaded: %s", path)
	} else {
		log.Println("No config file found, using defaults")
	}
	log.Println(cfg.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}
	store := topology.New(clk)
	tracker := probe.NewTracker()
	eventBus := service.NewEventBus()

	ingestHandler := ingest.NewHandler(store, tracker, clk)
	busClient := bus.New(busConfig(cfg), ingestHandler.HandleMessage)
	defer busClient.Close()

	meshSvc := service.NewMeshService(tracker, command.NewDispatcher(busClient), eventBus, clk)
	ingestHandler.SetProbeListener(meshSvc)

	coord := cycle.New(store, tracker, meshSvc, meshSvc, cfg.Topology.TickInterval.Duration(), cycleSettings(cfg), clk)
	meshSvc.SetTuner(coord)

	// Initialize streaming hub and connect the event bus to it
	streamHub := hub.New()
	go streamHub.Run(ctx)

	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				streamHub.Broadcast(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.MQTT.ConnectTimeout.Duration())
	if err := busClient.Connect(connectCtx); err != nil {
		log.Printf("Warning: %v (retrying in background)", err)
	}
	cancelConnect()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	if path != "" {
		w := watcher.New(path, func() {
			reloaded, _, err := config.LoadFromPath(path)
			if err != nil {
				log.Printf("Config reload failed, keeping current settings: %v", err)
				return
			}
			coord.SetSettings(cycleSettings(reloaded))
			log.Printf("Config reloaded: %s", reloaded.Summary())
		})
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Config watcher stopped: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.NewMeshHandler(meshSvc).Register(mux)
	mux.Handle("GET /events", streamHub)
	mux.HandleFunc("GET /ws", streamHub.ServeWS)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Chain(mux, handler.Recover, handler.CORS, handler.Logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoints stay open
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if opts.withTUI {
		tuiEvents := make(chan service.Event, 100)
		eventBus.Subscribe(tuiEvents)
		prog := tea.NewProgram(tui.New(meshSvc, tuiEvents), tea.WithAltScreen(), tea.WithContext(ctx))
		go func() {
			select {
			case err := <-serverErr:
				log.Printf("Server error: %v", err)
				prog.Quit()
			case <-ctx.Done():
			}
		}()
		if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Printf("Terminal UI error: %v", err)
		}
		eventBus.Unsubscribe(tuiEvents)
	} else {
		select {
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	return nil
}
