package protocol

import (
	"regexp"
	"strings"
)

// Default topic bases. Both bases must end with a slash.
const (
	DefaultHomieBase          = "homie/"
	DefaultLSHBase            = "LSH/"
	DefaultServiceTopic       = "LSH-service"
	DefaultOtherDevicesPrefix = "zigbee2mqtt"
)

// Topics holds the configured topic layout of the bus.
type Topics struct {
	// HomieBase is the prefix of Homie device topics, e.g. "homie/".
	HomieBase string

	// LSHBase is the prefix of LSH device topics, e.g. "LSH/".
	LSHBase string

	// ServiceTopic is the broadcast topic all devices listen on.
	ServiceTopic string

	// OtherDevicesPrefix is the topic prefix of non-LSH actuators managed
	// by an external bridge.
	OtherDevicesPrefix string
}

// DefaultTopics returns the standard topic layout.
func DefaultTopics() Topics {
	return Topics{
		HomieBase:          DefaultHomieBase,
		LSHBase:            DefaultLSHBase,
		ServiceTopic:       DefaultServiceTopic,
		OtherDevicesPrefix: DefaultOtherDevicesPrefix,
	}
}

// DeviceInbox returns the command topic of an LSH device.
func (t Topics) DeviceInbox(device string) string {
	return t.LSHBase + device + "/IN"
}

// ContextKey returns the context-store key holding the boolean state of a
// non-LSH actuator, e.g. "zigbee2mqtt.kitchen-light.state".
func (t Topics) ContextKey(device string) string {
	return t.OtherDevicesPrefix + "." + device + ".state"
}

// TopicKind classifies an inbound topic.
type TopicKind int

const (
	// TopicUnknown matches no route.
	TopicUnknown TopicKind = iota
	// TopicHomieState is <homieBase><device>/$state.
	TopicHomieState
	// TopicDeviceConf is <lshBase><device>/conf.
	TopicDeviceConf
	// TopicDeviceState is <lshBase><device>/state.
	TopicDeviceState
	// TopicDeviceMisc is <lshBase><device>/misc.
	TopicDeviceMisc
)

// String returns the route name.
func (k TopicKind) String() string {
	switch k {
	case TopicHomieState:
		return "homie-state"
	case TopicDeviceConf:
		return "conf"
	case TopicDeviceState:
		return "state"
	case TopicDeviceMisc:
		return "misc"
	default:
		return "unknown"
	}
}

// Router matches inbound topics against the configured grammar and extracts
// the device name. First match wins.
type Router struct {
	routes []route
}

type route struct {
	kind TopicKind
	re   *regexp.Regexp
}

// NewRouter builds a router for the given topic layout.
func NewRouter(t Topics) *Router {
	homie := regexp.QuoteMeta(t.HomieBase)
	lsh := regexp.QuoteMeta(t.LSHBase)
	return &Router{routes: []route{
		{TopicHomieState, regexp.MustCompile(`^` + homie + `([^/]+)/\$state$`)},
		{TopicDeviceConf, regexp.MustCompile(`^` + lsh + `([^/]+)/conf$`)},
		{TopicDeviceState, regexp.MustCompile(`^` + lsh + `([^/]+)/state$`)},
		{TopicDeviceMisc, regexp.MustCompile(`^` + lsh + `([^/]+)/misc$`)},
	}}
}

// Match classifies a topic and extracts the device name. Returns
// TopicUnknown and an empty name when nothing matches.
func (r *Router) Match(topic string) (TopicKind, string) {
	for _, rt := range r.routes {
		if m := rt.re.FindStringSubmatch(topic); m != nil {
			return rt.kind, m[1]
		}
	}
	return TopicUnknown, ""
}

// Subscriptions returns the bus subscription filters covering every route,
// using single-level wildcards.
func (t Topics) Subscriptions() []string {
	return []string{
		t.HomieBase + "+/$state",
		t.LSHBase + "+/conf",
		t.LSHBase + "+/state",
		t.LSHBase + "+/misc",
	}
}

// NormalizeBase appends a trailing slash to a topic base if missing.
func NormalizeBase(base string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
