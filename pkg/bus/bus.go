// Package bus connects the orchestrator core to an MQTT broker. It owns
// every side effect the core refuses to perform: subscriptions, publishes,
// timers, configuration loading, and logging. All core entry points are
// serialised behind a single mutex, preserving the core's single-threaded
// contract.
package bus

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lsh-protocol/lshd/pkg/config"
	"github.com/lsh-protocol/lshd/pkg/protocol"
	"github.com/lsh-protocol/lshd/pkg/service"
)

// Default topics for the adapter's own outputs.
const (
	// DefaultAlertTopic receives human-readable alert texts.
	DefaultAlertTopic = "LSH-service/alerts"

	// DefaultStatusTopic carries the retained registry snapshot.
	DefaultStatusTopic = "LSH-service/registry"
)

// Publish stagger bounds for batches that request it.
const (
	staggerMin = 50 * time.Millisecond
	staggerMax = 250 * time.Millisecond
)

const qosAtLeastOnce = 1

// Config configures the bus adapter.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://192.168.1.10:1883".
	BrokerURL string

	// ClientID is the MQTT client identifier. A random suffix is appended
	// so parallel instances never collide. Defaults to "lshd".
	ClientID string

	// Encoding selects the payload codec ("json" or "cbor").
	Encoding string

	// ConfigFile is the system configuration path. It is loaded on start
	// and reloaded when it changes on disk.
	ConfigFile string

	// AlertTopic overrides DefaultAlertTopic.
	AlertTopic string

	// StatusTopic overrides DefaultStatusTopic.
	StatusTopic string

	// Topics is the bus topic layout. Zero value takes the defaults.
	Topics protocol.Topics

	// Timing holds the orchestrator timing knobs. Zero fields take
	// defaults.
	Timing service.Timing

	// Logger is the adapter's logger.
	Logger zerolog.Logger
}

// Service is a running bus adapter.
type Service struct {
	cfg    Config
	log    zerolog.Logger
	codec  protocol.Codec
	topics protocol.Topics
	timing service.Timing

	// mu serialises every orchestrator entry point.
	mu       sync.Mutex
	orch     *service.Orchestrator
	ctxStore *ContextStore

	client mqtt.Client

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a bus adapter. The broker is not contacted until Start.
func New(cfg Config) (*Service, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("bus: broker URL is required")
	}
	if cfg.ConfigFile == "" {
		return nil, errors.New("bus: configuration file is required")
	}
	codec, err := protocol.CodecByName(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "lshd"
	}
	if cfg.Topics == (protocol.Topics{}) {
		cfg.Topics = protocol.DefaultTopics()
	}
	if cfg.AlertTopic == "" {
		cfg.AlertTopic = DefaultAlertTopic
	}
	if cfg.StatusTopic == "" {
		cfg.StatusTopic = DefaultStatusTopic
	}

	s := &Service{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "bus").Logger(),
		codec:    codec,
		topics:   cfg.Topics,
		ctxStore: NewContextStore(),
		stop:     make(chan struct{}),
	}

	s.orch = service.New(service.Options{
		Topics:        cfg.Topics,
		Validators:    protocol.NewValidators(codec),
		ContextReader: s.ctxStore,
		Timing:        cfg.Timing,
	})
	s.timing = effectiveTiming(cfg.Timing)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectRetry(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn().Err(err).Msg("Broker connection lost")
		})
	s.client = mqtt.NewClient(opts)

	return s, nil
}

// effectiveTiming fills zero timing fields with defaults, mirroring what the
// orchestrator does internally.
func effectiveTiming(t service.Timing) service.Timing {
	def := service.DefaultTiming()
	if t.ClickTimeout == 0 {
		t.ClickTimeout = def.ClickTimeout
	}
	if t.InterrogateThreshold == 0 {
		t.InterrogateThreshold = def.InterrogateThreshold
	}
	if t.PingTimeout == 0 {
		t.PingTimeout = def.PingTimeout
	}
	if t.ClickCleanupInterval == 0 {
		t.ClickCleanupInterval = def.ClickCleanupInterval
	}
	if t.WatchdogInterval == 0 {
		t.WatchdogInterval = def.WatchdogInterval
	}
	if t.InitialStateTimeout == 0 {
		t.InitialStateTimeout = def.InitialStateTimeout
	}
	return t
}

// Start connects to the broker, loads the system configuration, and starts
// the periodic sweeps and the configuration watcher.
func (s *Service) Start() error {
	s.log.Info().Str("broker", s.cfg.BrokerURL).Str("encoding", s.codec.Name()).
		Msg("Connecting to broker")

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("bus: connect: %w", token.Error())
	}

	s.loadConfig()

	s.wg.Add(1)
	go s.runTickers()

	if err := s.watchConfig(); err != nil {
		s.log.Warn().Err(err).Msg("Configuration hot reload disabled")
	}

	return nil
}

// Stop disconnects from the broker and stops all background work.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.client.Disconnect(250)
		s.log.Info().Msg("Bus adapter stopped")
	})
}

// onConnect (re)subscribes to all routes. Runs on every connect, so a
// reconnect after a broker restart restores the subscriptions.
func (s *Service) onConnect(client mqtt.Client) {
	for _, filter := range s.topics.Subscriptions() {
		s.subscribe(client, filter, s.onBusMessage)
	}
	// External actuator mirror: the bridge publishes either at the device
	// topic or at a /state subtopic, depending on its configuration.
	prefix := strings.TrimSuffix(s.topics.OtherDevicesPrefix, "/")
	s.subscribe(client, prefix+"/+", s.onContextMessage)
	s.subscribe(client, prefix+"/+/state", s.onContextMessage)

	s.log.Info().Msg("Subscriptions established")
}

func (s *Service) subscribe(client mqtt.Client, filter string, handler mqtt.MessageHandler) {
	if token := client.Subscribe(filter, qosAtLeastOnce, handler); token.Wait() && token.Error() != nil {
		s.log.Error().Err(token.Error()).Str("filter", filter).Msg("Subscribe failed")
	}
}

// onBusMessage feeds one inbound message through the core.
func (s *Service) onBusMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	res := s.orch.ProcessMessage(msg.Topic(), msg.Payload())
	s.mu.Unlock()

	s.apply(res)
}

// onContextMessage mirrors an external actuator state into the context
// store. Unparseable payloads are dropped silently: the bridge publishes
// plenty of topics that are not boolean states.
func (s *Service) onContextMessage(_ mqtt.Client, msg mqtt.Message) {
	prefix := strings.TrimSuffix(s.topics.OtherDevicesPrefix, "/") + "/"
	rest := strings.TrimPrefix(msg.Topic(), prefix)
	if rest == msg.Topic() {
		return
	}
	name := strings.TrimSuffix(rest, "/state")
	if name == "" || strings.Contains(name, "/") {
		return
	}

	value, ok := ParseBoolPayload(msg.Payload())
	if !ok {
		return
	}
	s.ctxStore.Set(s.topics.ContextKey(name), value)
}

// apply executes one result batch: logging, publishes, alerts, and the
// registry snapshot. A short batch ID correlates the log lines of one batch.
func (s *Service) apply(res service.Result) {
	if res.Empty() {
		return
	}

	log := s.log.With().Str("batch", uuid.NewString()[:8]).Logger()

	for _, line := range res.Logs {
		log.Info().Msg(line)
	}
	for _, line := range res.Warnings {
		log.Warn().Msg(line)
	}
	for _, line := range res.Errors {
		log.Error().Msg(line)
	}

	for _, m := range res.ServiceMessages {
		s.publishPayload(log, m)
	}

	if len(res.LSHMessages) > 0 {
		if res.StaggerLSH {
			msgs := append([]service.OutboundMessage(nil), res.LSHMessages...)
			s.wg.Add(1)
			go s.publishStaggered(log, msgs)
		} else {
			for _, m := range res.LSHMessages {
				s.publishPayload(log, m)
			}
		}
	}

	if cmd := res.OtherActors; cmd != nil {
		s.fanOutOtherActors(log, cmd)
	}

	for _, alert := range res.Alerts {
		s.client.Publish(s.cfg.AlertTopic, qosAtLeastOnce, false, alert)
	}

	if res.StateChanged {
		s.publishSnapshot(log)
	}
}

// publishPayload encodes one protocol payload and publishes it.
func (s *Service) publishPayload(log zerolog.Logger, m service.OutboundMessage) {
	data, err := s.codec.Marshal(m.Payload)
	if err != nil {
		log.Error().Err(err).Str("topic", m.Topic).Msg("Payload encoding failed")
		return
	}
	s.client.Publish(m.Topic, qosAtLeastOnce, false, data)
}

// publishStaggered sends device commands with a randomized gap so a large
// fleet does not answer in one burst.
func (s *Service) publishStaggered(log zerolog.Logger, msgs []service.OutboundMessage) {
	defer s.wg.Done()
	for i, m := range msgs {
		if i > 0 {
			delay := staggerMin + rand.N(staggerMax-staggerMin)
			select {
			case <-s.stop:
				return
			case <-time.After(delay):
			}
		}
		s.publishPayload(log, m)
	}
}

// fanOutOtherActors publishes a state command to each external actuator's
// set topic, in the bridge's JSON convention.
func (s *Service) fanOutOtherActors(log zerolog.Logger, cmd *service.OtherActorsCommand) {
	state := "OFF"
	if cmd.StateToSet {
		state = "ON"
	}
	payload := fmt.Sprintf(`{"state":%q}`, state)
	prefix := strings.TrimSuffix(s.topics.OtherDevicesPrefix, "/") + "/"

	for _, name := range cmd.Names {
		s.client.Publish(prefix+name+"/set", qosAtLeastOnce, false, payload)
	}
	log.Info().Int("actors", len(cmd.Names)).Msg(cmd.Payload)
}

// publishSnapshot publishes the registry snapshot retained, so dashboards
// joining later still see the current fleet state. The snapshot is always
// JSON regardless of the device codec.
func (s *Service) publishSnapshot(log zerolog.Logger) {
	s.mu.Lock()
	snap := s.orch.DeviceRegistrySnapshot()
	s.mu.Unlock()

	data, err := protocol.JSONCodec{}.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("Snapshot encoding failed")
		return
	}
	s.client.Publish(s.cfg.StatusTopic, qosAtLeastOnce, true, data)
}

// runTickers drives the periodic watchdog and click-cleanup sweeps.
func (s *Service) runTickers() {
	defer s.wg.Done()

	watchdog := time.NewTicker(s.timing.WatchdogInterval)
	defer watchdog.Stop()
	cleanup := time.NewTicker(s.timing.ClickCleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-s.stop:
			return

		case <-watchdog.C:
			s.mu.Lock()
			res := s.orch.RunWatchdogCheck()
			s.mu.Unlock()
			s.apply(res)

		case <-cleanup.C:
			s.mu.Lock()
			line := s.orch.CleanupPendingClicks()
			s.mu.Unlock()
			if line != "" {
				s.log.Info().Msg(line)
			}
		}
	}
}

// loadConfig loads the system configuration file into the core and runs the
// startup sequence: announce commands to every configured device, ping the
// ones not yet connected, and schedule the final verification.
func (s *Service) loadConfig() {
	sys, err := config.Load(s.cfg.ConfigFile)
	if err != nil {
		s.log.Error().Err(err).Str("file", s.cfg.ConfigFile).
			Msg("System configuration rejected, keeping previous one")
		return
	}

	s.mu.Lock()
	line := s.orch.UpdateSystemConfig(sys)
	startup := s.orch.GetStartupCommands()
	verify, pinged := s.orch.VerifyInitialDeviceStates()
	s.mu.Unlock()

	s.log.Info().Msg(line)
	s.apply(startup)
	s.apply(verify)

	if len(pinged) == 0 {
		return
	}
	timer := time.AfterFunc(s.timing.InitialStateTimeout, func() {
		s.mu.Lock()
		final := s.orch.RunFinalVerification(pinged)
		s.mu.Unlock()
		s.apply(final)
	})
	// A config reload before the deadline restarts verification; drop the
	// stale timer on shutdown.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.stop
		timer.Stop()
	}()
}
