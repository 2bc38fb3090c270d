// Package command encodes operator commands for the mesh command topic.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrInvalidCommand is returned for commands rejected before publishing
var ErrInvalidCommand = errors.New("invalid command")

// Action names understood by the firmware
const (
	ActionPing  = "ping"
	ActionBlink = "blink"
)

// Publisher sends a payload to the mesh command topic
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// ConfigPush changes how often nodes report and how many children each
// node accepts. Interval is in milliseconds.
type ConfigPush struct {
	Interval    int `json:"interval"`
	MaxChildren int `json:"max_children"`
}

// Targeted is a command addressed to one node
type Targeted struct {
	Target string `json:"target"`
	Action string `json:"action"`
}

// Dispatcher is a thin pass-through from operator intent to the bus
type Dispatcher struct {
	pub Publisher
}

// NewDispatcher creates a dispatcher publishing through pub
func NewDispatcher(pub Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// PushConfig publishes a configuration change to every node
func (d *Dispatcher) PushConfig(ctx context.Context, cfg ConfigPush) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidCommand, cfg.Interval)
	}
	if cfg.MaxChildren <= 0 {
		return fmt.Errorf("%w: max_children must be positive, got %d", ErrInvalidCommand, cfg.MaxChildren)
	}
	if err := d.send(ctx, cfg); err != nil {
		return err
	}
	log.Printf("Config pushed: interval=%dms max_children=%d", cfg.Interval, cfg.MaxChildren)
	return nil
}

// Ping asks target to answer with a pong
func (d *Dispatcher) Ping(ctx context.Context, target string) error {
	return d.targeted(ctx, target, ActionPing)
}

// Blink asks target to flash its LEDs
func (d *Dispatcher) Blink(ctx context.Context, target string) error {
	return d.targeted(ctx, target, ActionBlink)
}

func (d *Dispatcher) targeted(ctx context.Context, target, action string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: %s needs a target", ErrInvalidCommand, action)
	}
	if err := d.send(ctx, Targeted{Target: target, Action: action}); err != nil {
		return err
	}
	log.Printf("Sent %s to %s", action, target)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := d.pub.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}
	return nil
}
