package domain

import (
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	now := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	s := NewSession("s1", "table-4", 4, now, 3*time.Hour)

	if s.Status != SessionActive {
		t.Errorf("Status = %q, want %q", s.Status, SessionActive)
	}
	if !s.ExpiryTime.Equal(now.Add(3 * time.Hour)) {
		t.Errorf("ExpiryTime = %v, want %v", s.ExpiryTime, now.Add(3*time.Hour))
	}
	if !s.LastActivity.Equal(now) || !s.StartTime.Equal(now) {
		t.Errorf("StartTime/LastActivity not set to now")
	}
	if s.Devices == nil || s.Flags.Reasons == nil {
		t.Error("Devices and Flags.Reasons should be empty, not nil")
	}
	if s.TotalDevices != 0 || s.OrderCount != 0 {
		t.Errorf("counters should start at zero, got devices=%d orders=%d", s.TotalDevices, s.OrderCount)
	}
}

func TestSession_IsExpired(t *testing.T) {
	expiry := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	s := &Session{ExpiryTime: expiry}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before expiry", now: expiry.Add(-time.Second), want: false},
		{name: "at expiry", now: expiry, want: false},
		{name: "after expiry", now: expiry.Add(time.Millisecond), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestSession_HasDevice(t *testing.T) {
	s := &Session{Devices: []Device{{Fingerprint: "a"}, {Fingerprint: "b"}}}

	if !s.HasDevice("b") {
		t.Error("HasDevice(b) = false, want true")
	}
	if s.HasDevice("c") {
		t.Error("HasDevice(c) = true, want false")
	}
	if (&Session{}).HasDevice("") {
		t.Error("empty session should have no devices")
	}
}

func TestOrder_Total(t *testing.T) {
	tests := []struct {
		name  string
		items []OrderItem
		want  float64
	}{
		{name: "no items", want: 0},
		{name: "single", items: []OrderItem{{Quantity: 3, UnitPrice: 4.5}}, want: 13.5},
		{name: "mixed", items: []OrderItem{{Quantity: 2, UnitPrice: 11.5}, {Quantity: 1, UnitPrice: 2}, {Quantity: 4, UnitPrice: 0}}, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Items: tt.items}
			if got := o.Total(); got != tt.want {
				t.Errorf("Total() = %v, want %v", got, tt.want)
			}
		})
	}
}
