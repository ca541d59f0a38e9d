package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

func TestParseFamily(t *testing.T) {
	for _, s := range []string{"usb", "network", "ble", "loopback"} {
		if f, err := ParseFamily(s); err != nil || string(f) != s {
			t.Errorf("ParseFamily(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFamily("serial"); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("ParseFamily(serial) error = %v", err)
	}
}

func TestEndpointKey(t *testing.T) {
	a := Endpoint{Family: FamilyUSB, Address: "/dev/ttyACM0"}
	b := Endpoint{Family: FamilyNetwork, Address: "/dev/ttyACM0"}
	if a.Key() == b.Key() {
		t.Error("keys must differ across families")
	}
	if got := (Endpoint{Family: FamilyBLE, Address: "AA:BB", Name: "Tail"}).String(); got != "ble:AA:BB (Tail)" {
		t.Errorf("String() = %q", got)
	}
}

func TestCloseOnce(t *testing.T) {
	c := NewCloseOnce()
	if c.Closed() {
		t.Fatal("new CloseOnce reports closed")
	}
	c.Close()
	c.Close()
	if !c.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	<-c.Done()
}

func TestSinkFuncs(t *testing.T) {
	var frames int
	var lost error
	s := SinkFuncs{
		OnFrame: func(protocol.Frame) { frames++ },
		OnLost:  func(err error) { lost = err },
	}
	s.Deliver(protocol.Frame{})
	s.Lost(ErrHeartbeatLost)
	if frames != 1 || !errors.Is(lost, ErrHeartbeatLost) {
		t.Errorf("frames=%d lost=%v", frames, lost)
	}

	SinkFuncs{}.Deliver(protocol.Frame{}) // nil funcs are ignored
}

type plainEnumerator struct{}

func (plainEnumerator) Family() Family                                { return FamilyUSB }
func (plainEnumerator) Enumerate(context.Context) ([]Endpoint, error) { return nil, nil }

type trackingEnumerator struct {
	plainEnumerator
	tracks bool
}

func (e trackingEnumerator) TracksLiveness() bool { return e.tracks }

func TestTracksLiveness(t *testing.T) {
	tests := []struct {
		name string
		e    Enumerator
		want bool
	}{
		{"no capability", plainEnumerator{}, false},
		{"declines", trackingEnumerator{tracks: false}, false},
		{"tracks", trackingEnumerator{tracks: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TracksLiveness(tt.e); got != tt.want {
				t.Errorf("TracksLiveness() = %v, want %v", got, tt.want)
			}
		})
	}
}
