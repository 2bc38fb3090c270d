package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meshview/internal/bus"
	"meshview/internal/command"
	"meshview/internal/config"
	"meshview/internal/ingest"
	"meshview/internal/platform/clock"
	"meshview/internal/probe"
	"meshview/internal/service"
	"meshview/internal/topology"
)

// session is a short-lived broker connection for one-shot commands
type session struct {
	client *bus.Client
	svc    *service.MeshService
	events chan service.Event
}

func openSession(ctx context.Context, configPath string) (*session, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}
	tracker := probe.NewTracker()
	eventBus := service.NewEventBus()
	events := make(chan service.Event, 16)
	eventBus.Subscribe(events)

	// Reports arriving meanwhile go to a throwaway store; only pongs matter.
	h := ingest.NewHandler(topology.New(clk), tracker, clk)
	client := bus.New(busConfig(cfg), h.HandleMessage)
	svc := service.NewMeshService(tracker, command.NewDispatcher(client), eventBus, clk)
	h.SetProbeListener(svc)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.MQTT.ConnectTimeout.Duration())
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		client.Close()
		return nil, err
	}
	return &session{client: client, svc: svc, events: events}, nil
}

func (s *session) Close() {
	s.client.Close()
}

// waitForPong blocks until id answers or ctx ends
func (s *session) waitForPong(ctx context.Context, id string) (service.ProbeResult, error) {
	for {
		select {
		case ev := <-s.events:
			if res, ok := ev.Payload.(service.ProbeResult); ok && res.ID == id {
				return res, nil
			}
		case <-ctx.Done():
			return service.ProbeResult{}, fmt.Errorf("no reply from %s: %w", id, ctx.Err())
		}
	}
}

func newPingCmd(configPath *string) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "ping <node-id>",
		Short: "Send a ping to a node and report its round-trip time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.Ping(ctx, args[0]); err != nil {
				return err
			}
			if wait <= 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ping sent to %s\n", args[0])
				return nil
			}

			waitCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			res, err := s.waitForPong(waitCtx, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pong from %s in %.1fms\n", res.ID, res.Latency.Milliseconds())
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for the reply (0 = don't wait)")
	return cmd
}

func newBlinkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "blink <node-id>",
		Short: "Ask a node to flash its LEDs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.svc.Blink(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "blink sent to %s\n", args[0])
			return nil
		},
	}
}

func newPushConfigCmd(configPath *string) *cobra.Command {
	var interval, maxChildren int

	cmd := &cobra.Command{
		Use:   "push-config",
		Short: "Send report interval and child limit to every node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Mesh.IntervalMS
			}
			if !cmd.Flags().Changed("max-children") {
				maxChildren = cfg.Mesh.MaxChildren
			}

			s, err := openSession(ctx, *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			req := service.ConfigRequest{Interval: interval, MaxChildren: maxChildren}
			if err := s.svc.PushConfig(ctx, req); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "config pushed: interval=%dms max_children=%d\n", interval, maxChildren)
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval", config.DefaultIntervalMS, "report interval in milliseconds")
	cmd.Flags().IntVar(&maxChildren, "max-children", config.DefaultMaxChildren, "maximum children per node")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Config file commands"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			return writeDefaultConfig(cmd.OutOrStdout(), path, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cfgCmd.AddCommand(initCmd)
	return cfgCmd
}

func writeDefaultConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
