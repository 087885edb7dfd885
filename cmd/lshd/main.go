// Command lshd is the LSH home-automation orchestrator daemon.
//
// It connects to an MQTT broker, tracks the LSH device fleet, executes the
// click two-phase commit, and watches device liveness.
//
// Usage:
//
//	lshd -config system.yaml [flags]
//
// Flags:
//
//	-config string       System configuration file (YAML or JSON, required)
//	-broker string       Broker URL, e.g. tcp://192.168.1.10:1883
//	                     (empty: discover via mDNS)
//	-encoding string     Payload encoding: json or cbor (default "json")
//	-client-id string    MQTT client ID prefix (default "lshd")
//	-homie-base string   Homie topic base (default "homie/")
//	-lsh-base string     LSH topic base (default "LSH/")
//	-service-topic string Broadcast topic devices listen on (default "LSH-service")
//	-other-prefix string Topic prefix of bridged non-LSH actuators (default "zigbee2mqtt")
//	-alert-topic string  Topic for alert texts (default "LSH-service/alerts")
//	-status-topic string Topic for the retained registry snapshot (default "LSH-service/registry")
//	-interface string    Network interface for mDNS discovery (default all)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-log-json            Emit JSON logs instead of console output
//
// Timing knobs (-click-timeout, -interrogate-threshold, -ping-timeout,
// -click-cleanup-interval, -watchdog-interval, -initial-state-timeout) accept
// Go duration strings and default to 3s/90s/10s/60s/30s/30s.
//
// Examples:
//
//	# Run against a known broker
//	lshd -config /etc/lshd/system.yaml -broker tcp://192.168.1.10:1883
//
//	# Discover the broker via mDNS, speak CBOR to the devices
//	lshd -config system.yaml -encoding cbor
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lsh-protocol/lshd/pkg/bus"
	"github.com/lsh-protocol/lshd/pkg/discovery"
	"github.com/lsh-protocol/lshd/pkg/protocol"
	"github.com/lsh-protocol/lshd/pkg/service"
	"github.com/lsh-protocol/lshd/pkg/version"
)

// discoveryTimeout bounds the mDNS broker search when no broker URL is
// given.
const discoveryTimeout = 10 * time.Second

type options struct {
	configFile   string
	brokerURL    string
	encoding     string
	clientID     string
	homieBase    string
	lshBase      string
	serviceTopic string
	otherPrefix  string
	alertTopic   string
	statusTopic  string
	iface        string
	logLevel     string
	logJSON      bool

	clickTimeout         time.Duration
	interrogateThreshold time.Duration
	pingTimeout          time.Duration
	clickCleanup         time.Duration
	watchdogInterval     time.Duration
	initialStateTimeout  time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "System configuration file (required)")
	flag.StringVar(&opts.brokerURL, "broker", "", "Broker URL (empty: discover via mDNS)")
	flag.StringVar(&opts.encoding, "encoding", "json", "Payload encoding: json or cbor")
	flag.StringVar(&opts.clientID, "client-id", "lshd", "MQTT client ID prefix")
	flag.StringVar(&opts.homieBase, "homie-base", protocol.DefaultHomieBase, "Homie topic base")
	flag.StringVar(&opts.lshBase, "lsh-base", protocol.DefaultLSHBase, "LSH topic base")
	flag.StringVar(&opts.serviceTopic, "service-topic", protocol.DefaultServiceTopic, "Broadcast topic devices listen on")
	flag.StringVar(&opts.otherPrefix, "other-prefix", protocol.DefaultOtherDevicesPrefix, "Topic prefix of bridged non-LSH actuators")
	flag.StringVar(&opts.alertTopic, "alert-topic", bus.DefaultAlertTopic, "Topic for alert texts")
	flag.StringVar(&opts.statusTopic, "status-topic", bus.DefaultStatusTopic, "Topic for the retained registry snapshot")
	flag.StringVar(&opts.iface, "interface", "", "Network interface for mDNS discovery")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs instead of console output")
	def := service.DefaultTiming()
	flag.DurationVar(&opts.clickTimeout, "click-timeout", def.ClickTimeout, "Max gap between click request and confirmation")
	flag.DurationVar(&opts.interrogateThreshold, "interrogate-threshold", def.InterrogateThreshold, "Silence duration before a device is pinged")
	flag.DurationVar(&opts.pingTimeout, "ping-timeout", def.PingTimeout, "How long to wait for a ping response")
	flag.DurationVar(&opts.clickCleanup, "click-cleanup-interval", def.ClickCleanupInterval, "How often expired clicks are swept")
	flag.DurationVar(&opts.watchdogInterval, "watchdog-interval", def.WatchdogInterval, "How often the liveness sweep runs")
	flag.DurationVar(&opts.initialStateTimeout, "initial-state-timeout", def.InitialStateTimeout, "Grace period for initial device verification")
	flag.Parse()

	log, err := setupLogger(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lshd: %v\n", err)
		os.Exit(2)
	}

	if opts.configFile == "" {
		fmt.Fprintln(os.Stderr, "lshd: -config is required")
		flag.Usage()
		os.Exit(2)
	}

	log.Info().Str("version", version.Current).Msg("LSH orchestrator starting")

	if opts.brokerURL == "" {
		url, err := discoverBroker(log, opts.iface)
		if err != nil {
			log.Fatal().Err(err).Msg("Broker discovery failed, use -broker")
		}
		opts.brokerURL = url
	}

	svc, err := bus.New(bus.Config{
		BrokerURL:  opts.brokerURL,
		ClientID:   opts.clientID,
		Encoding:   opts.encoding,
		ConfigFile: opts.configFile,
		AlertTopic: opts.alertTopic,
		StatusTopic: opts.statusTopic,
		Topics: protocol.Topics{
			HomieBase:          protocol.NormalizeBase(opts.homieBase),
			LSHBase:            protocol.NormalizeBase(opts.lshBase),
			ServiceTopic:       opts.serviceTopic,
			OtherDevicesPrefix: opts.otherPrefix,
		},
		Timing: service.Timing{
			ClickTimeout:         opts.clickTimeout,
			InterrogateThreshold: opts.interrogateThreshold,
			PingTimeout:          opts.pingTimeout,
			ClickCleanupInterval: opts.clickCleanup,
			WatchdogInterval:     opts.watchdogInterval,
			InitialStateTimeout:  opts.initialStateTimeout,
		},
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	svc.Stop()
}

// setupLogger builds the daemon logger from the CLI options.
func setupLogger(opts options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q", opts.logLevel)
	}

	var log zerolog.Logger
	if opts.logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}

// discoverBroker finds an MQTT broker on the local network via mDNS.
func discoverBroker(log zerolog.Logger, iface string) (string, error) {
	log.Info().Msg("No broker configured, browsing mDNS for _mqtt._tcp")

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	browser := discovery.NewBrowser(discovery.BrowserConfig{Interface: iface})
	defer browser.Stop()

	svc, err := browser.FindBroker(ctx)
	if err != nil {
		return "", err
	}

	url := svc.URL()
	log.Info().Str("instance", svc.InstanceName).Str("broker", url).Msg("Broker discovered")
	return url, nil
}
