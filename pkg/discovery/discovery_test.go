package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func TestEntryToBroker(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "broker.local.",
		Port:     1883,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")},
		AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
	}
	entry.Instance = "Mosquitto"

	svc := entryToBroker(entry)
	if svc == nil {
		t.Fatal("entryToBroker returned nil")
	}
	if svc.InstanceName != "Mosquitto" || svc.Host != "broker.local." || svc.Port != 1883 {
		t.Errorf("svc = %+v", svc)
	}
	if len(svc.Addresses) != 2 || svc.Addresses[0] != "192.168.1.10" {
		t.Errorf("Addresses = %v", svc.Addresses)
	}
}

func TestEntryToBrokerDefaultPort(t *testing.T) {
	svc := entryToBroker(&zeroconf.ServiceEntry{HostName: "broker.local."})
	if svc.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", svc.Port, DefaultPort)
	}
}

func TestBrokerURL(t *testing.T) {
	svc := &BrokerService{Host: "broker.local.", Port: 1883, Addresses: []string{"192.168.1.10"}}
	if got := svc.URL(); got != "tcp://192.168.1.10:1883" {
		t.Errorf("URL = %q", got)
	}

	svc = &BrokerService{Host: "broker.local", Port: 8883}
	if got := svc.URL(); got != "tcp://broker.local:8883" {
		t.Errorf("URL = %q", got)
	}

	svc = &BrokerService{Host: "broker.local", Port: 1883, Addresses: []string{"fe80::1"}}
	if got := svc.URL(); got != "tcp://[fe80::1]:1883" {
		t.Errorf("URL = %q", got)
	}
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	if len(got) != 3 || got[2] != "c" {
		t.Errorf("mergeAddresses = %v", got)
	}
}

func TestRemoveAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("192.168.1.10")}}
	got := removeAddresses([]string{"192.168.1.10", "192.168.1.11"}, entry)
	if len(got) != 1 || got[0] != "192.168.1.11" {
		t.Errorf("removeAddresses = %v", got)
	}
}
