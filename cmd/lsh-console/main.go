// Command lsh-console is an interactive console for LSH installations.
//
// It connects to the broker and lets an operator inspect the fleet, watch
// alerts, and simulate device traffic: clicks, state reports, boots, and
// Homie connectivity changes. Useful both against a live installation and
// for exercising an lshd instance without physical devices.
//
// Usage:
//
//	lsh-console [flags]
//
// Flags:
//
//	-broker string     Broker URL (empty: discover via mDNS)
//	-encoding string   Payload encoding: json or cbor (default "json")
//	-lsh-base string   LSH topic base (default "LSH/")
//	-homie-base string Homie topic base (default "homie/")
//	-alert-topic string  Topic carrying alert texts (default "LSH-service/alerts")
//	-status-topic string Topic carrying the registry snapshot (default "LSH-service/registry")
//
// Interactive commands:
//
//	devices                     - Show the registry snapshot
//	click <dev> <btn> <lc|slc>  - Simulate a click (request + confirmation)
//	conf <dev> <a1,a2> [b1,b2]  - Announce device details
//	state <dev> <t,f,...>       - Report an actuator state vector
//	online <dev> / offline <dev> - Publish the Homie connectivity state
//	boot <dev> / pong <dev>     - Publish a boot or ping response
//	pub <topic> <payload>       - Publish a raw message
//	sub <filter>                - Subscribe and print matching messages
//	quit                        - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lsh-protocol/lshd/cmd/lsh-console/interactive"
	"github.com/lsh-protocol/lshd/pkg/bus"
	"github.com/lsh-protocol/lshd/pkg/discovery"
	"github.com/lsh-protocol/lshd/pkg/protocol"
)

const discoveryTimeout = 10 * time.Second

func main() {
	var (
		brokerURL   = flag.String("broker", "", "Broker URL (empty: discover via mDNS)")
		encoding    = flag.String("encoding", "json", "Payload encoding: json or cbor")
		lshBase     = flag.String("lsh-base", protocol.DefaultLSHBase, "LSH topic base")
		homieBase   = flag.String("homie-base", protocol.DefaultHomieBase, "Homie topic base")
		alertTopic  = flag.String("alert-topic", bus.DefaultAlertTopic, "Topic carrying alert texts")
		statusTopic = flag.String("status-topic", bus.DefaultStatusTopic, "Topic carrying the registry snapshot")
	)
	flag.Parse()

	codec, err := protocol.CodecByName(*encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsh-console: %v\n", err)
		os.Exit(2)
	}

	url := *brokerURL
	if url == "" {
		ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
		browser := discovery.NewBrowser(discovery.BrowserConfig{})
		svc, err := browser.FindBroker(ctx)
		cancel()
		browser.Stop()
		if err != nil {
			fmt.Fprintln(os.Stderr, "lsh-console: no broker found, use -broker")
			os.Exit(1)
		}
		url = svc.URL()
		fmt.Printf("Discovered broker %s (%s)\n", url, svc.InstanceName)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID("lsh-console-" + uuid.NewString()[:8]).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Fprintf(os.Stderr, "lsh-console: connect: %v\n", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	console, err := interactive.New(interactive.Config{
		Client:      client,
		Codec:       codec,
		LSHBase:     protocol.NormalizeBase(*lshBase),
		HomieBase:   protocol.NormalizeBase(*homieBase),
		AlertTopic:  *alertTopic,
		StatusTopic: *statusTopic,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsh-console: %v\n", err)
		os.Exit(1)
	}

	console.Run()
}
