// Command meshview tracks a self-organizing mesh from its MQTT reports,
// lays it out as a tree and serves it over HTTP, SSE and WebSocket.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"meshview/internal/bus"
	"meshview/internal/config"
	"meshview/internal/cycle"
	"meshview/internal/layout"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "meshview",
		Short:         "Live topology viewer for ESP mesh networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search "+config.EnvConfigPath+", ./"+config.ConfigFileName+", XDG, /etc)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newPingCmd(&configPath))
	root.AddCommand(newBlinkCmd(&configPath))
	root.AddCommand(newPushConfigCmd(&configPath))
	root.AddCommand(newConfigCmd())
	return root
}

// loadConfig resolves and reads the config. The returned path is empty
// when defaults are in use.
func loadConfig(path string) (*config.Config, string, error) {
	return config.Load(path)
}

func busConfig(cfg *config.Config) bus.Config {
	return bus.Config{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		InfoTopic:      cfg.MQTT.InfoTopic,
		CommandTopic:   cfg.MQTT.CommandTopic,
		QoS:            byte(cfg.MQTT.QoS),
		ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration(),
	}
}

func cycleSettings(cfg *config.Config) cycle.Settings {
	return cycle.Settings{
		NodeTimeout:  cfg.Topology.Timeout(),
		PendingTTL:   cfg.Probe.TTL(),
		ClearOnEvict: cfg.Probe.ClearOnEvict,
		Spacing:      layout.Spacing{X: cfg.Layout.SpacingX, Y: cfg.Layout.SpacingY},
	}
}
