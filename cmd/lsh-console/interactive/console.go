// Package interactive provides the interactive command loop of lsh-console.
package interactive

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lsh-protocol/lshd/pkg/protocol"
	"github.com/lsh-protocol/lshd/pkg/registry"
)

// clickConfirmDelay is the gap between the simulated click request and its
// confirmation, mimicking a user releasing the button.
const clickConfirmDelay = 300 * time.Millisecond

// Config configures the console.
type Config struct {
	// Client is a connected MQTT client.
	Client mqtt.Client

	// Codec encodes the simulated device payloads.
	Codec protocol.Codec

	// LSHBase and HomieBase are the topic bases, both slash-terminated.
	LSHBase   string
	HomieBase string

	// AlertTopic carries alert texts; the console prints them as they
	// arrive.
	AlertTopic string

	// StatusTopic carries the retained registry snapshot.
	StatusTopic string
}

// Console is the interactive command loop.
type Console struct {
	cfg Config
	rl  *readline.Instance

	mu       sync.Mutex
	snapshot map[string]*registry.DeviceState
}

// New creates a console and subscribes to the alert and status topics.
func New(cfg Config) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lsh> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{cfg: cfg, rl: rl}

	cfg.Client.Subscribe(cfg.AlertTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Fprintf(rl.Stdout(), "\n%s\n", string(msg.Payload()))
	})
	cfg.Client.Subscribe(cfg.StatusTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var snap map[string]*registry.DeviceState
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			return
		}
		c.mu.Lock()
		c.snapshot = snap
		c.mu.Unlock()
	})

	return c, nil
}

// Run starts the command loop and blocks until the user exits.
func (c *Console) Run() {
	defer c.rl.Close()

	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "devices", "d":
			c.cmdDevices()

		case "click", "c":
			c.cmdClick(args)

		case "conf":
			c.cmdConf(args)

		case "state", "s":
			c.cmdState(args)

		case "online":
			c.cmdHomie(args, "ready")

		case "offline":
			c.cmdHomie(args, "lost")

		case "boot":
			c.cmdMisc(args, protocol.DeviceBoot{Protocol: protocol.TagDeviceBoot})

		case "pong":
			c.cmdMisc(args, protocol.DevicePing{Protocol: protocol.TagPing})

		case "pub":
			c.cmdPub(args)

		case "sub":
			c.cmdSub(args)

		case "quit", "exit", "q":
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command %q, try 'help'\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.rl.Stdout(), `Commands:
  devices                      Show the registry snapshot
  click <dev> <btn> <lc|slc>   Simulate a click (request + confirmation)
  conf <dev> <a1,a2> [b1,b2]   Announce device details
  state <dev> <t,f,...>        Report an actuator state vector
  online <dev> | offline <dev> Publish the Homie connectivity state
  boot <dev> | pong <dev>      Publish a boot or ping response
  pub <topic> <payload>        Publish a raw message
  sub <filter>                 Subscribe and print matching messages
  quit                         Exit
`)
}

// cmdDevices prints the last registry snapshot seen on the status topic.
func (c *Console) cmdDevices() {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if len(snap) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No registry snapshot received yet (is lshd running?)")
		return
	}

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := snap[name]
		health := "healthy"
		switch {
		case !d.IsHealthy:
			health = "UNHEALTHY"
		case d.IsStale:
			health = "stale"
		}
		conn := "offline"
		if d.Connected {
			conn = "online"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %-20s %-8s %-10s actuators=%v states=%v\n",
			name, conn, health, d.ActuatorIDs, d.ActuatorStates)
	}
}

// cmdClick simulates a full two-phase click: the request, then the
// confirmation after a short delay.
func (c *Console) cmdClick(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: click <device> <button> <lc|slc>")
		return
	}
	ct := protocol.ClickType(args[2])
	if !ct.Valid() {
		fmt.Fprintf(c.rl.Stdout(), "Invalid click type %q, want lc or slc\n", args[2])
		return
	}

	topic := c.cfg.LSHBase + args[0] + "/misc"
	request := protocol.NetworkClick{
		Protocol: protocol.TagNetworkClick, ButtonID: args[1], ClickType: ct,
	}
	if !c.publish(topic, request) {
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Click request sent for %s/%s\n", args[0], args[1])

	time.Sleep(clickConfirmDelay)

	request.Confirmed = true
	if c.publish(topic, request) {
		fmt.Fprintln(c.rl.Stdout(), "Click confirmed")
	}
}

// cmdConf announces device details on behalf of a device.
func (c *Console) cmdConf(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: conf <device> <actuator,actuator> [button,button]")
		return
	}
	details := protocol.DeviceDetails{
		Protocol:    protocol.TagDeviceDetails,
		ActuatorIDs: splitList(args[1]),
	}
	if len(args) > 2 {
		details.ButtonIDs = splitList(args[2])
	} else {
		details.ButtonIDs = []string{}
	}
	c.publish(c.cfg.LSHBase+args[0]+"/conf", details)
}

// cmdState reports an actuator state vector on behalf of a device.
func (c *Console) cmdState(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: state <device> <true,false,...>")
		return
	}

	var states []bool
	for _, word := range splitList(args[1]) {
		switch strings.ToLower(word) {
		case "true", "t", "1", "on":
			states = append(states, true)
		case "false", "f", "0", "off":
			states = append(states, false)
		default:
			fmt.Fprintf(c.rl.Stdout(), "Invalid state %q\n", word)
			return
		}
	}

	c.publish(c.cfg.LSHBase+args[0]+"/state", protocol.ActuatorStates{
		Protocol: protocol.TagActuatorStates, States: states,
	})
}

// cmdHomie publishes a Homie $state value for a device.
func (c *Console) cmdHomie(args []string, state string) {
	if len(args) != 1 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: %s <device>\n", map[string]string{"ready": "online", "lost": "offline"}[state])
		return
	}
	topic := c.cfg.HomieBase + args[0] + "/$state"
	c.cfg.Client.Publish(topic, 1, false, state)
	fmt.Fprintf(c.rl.Stdout(), "Published %s = %s\n", topic, state)
}

// cmdMisc publishes a misc payload on behalf of a device.
func (c *Console) cmdMisc(args []string, payload any) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: boot|pong <device>")
		return
	}
	c.publish(c.cfg.LSHBase+args[0]+"/misc", payload)
}

// cmdPub publishes a raw message.
func (c *Console) cmdPub(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: pub <topic> <payload>")
		return
	}
	payload := strings.Join(args[1:], " ")
	c.cfg.Client.Publish(args[0], 1, false, payload)
}

// cmdSub subscribes to a filter and prints matching messages.
func (c *Console) cmdSub(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: sub <filter>")
		return
	}
	token := c.cfg.Client.Subscribe(args[0], 1, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Fprintf(c.rl.Stdout(), "\n[%s] %s\n", msg.Topic(), string(msg.Payload()))
	})
	if token.Wait() && token.Error() != nil {
		fmt.Fprintf(c.rl.Stdout(), "Subscribe failed: %v\n", token.Error())
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Subscribed to %s\n", args[0])
}

// publish encodes and publishes one payload, reporting errors to the user.
func (c *Console) publish(topic string, payload any) bool {
	data, err := c.cfg.Codec.Marshal(payload)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Encoding failed: %v\n", err)
		return false
	}
	token := c.cfg.Client.Publish(topic, 1, false, data)
	if token.Wait() && token.Error() != nil {
		fmt.Fprintf(c.rl.Stdout(), "Publish failed: %v\n", token.Error())
		return false
	}
	return true
}

// splitList splits a comma-separated argument, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
