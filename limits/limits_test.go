package limits

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int
		wantErr error
	}{
		{"empty", 0, 10, ErrPacketEmpty},
		{"one byte", 1, 10, nil},
		{"at limit", 10, 10, nil},
		{"over limit", 11, 10, ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePacket(make([]byte, tt.size), tt.max)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChannelLimits(t *testing.T) {
	if err := ValidateUnreliable(make([]byte, MaxUnreliablePacket)); err != nil {
		t.Errorf("packet at unreliable limit rejected: %v", err)
	}
	if err := ValidateUnreliable(make([]byte, MaxUnreliablePacket+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("oversized unreliable packet: got %v", err)
	}
	if err := ValidateReliable(make([]byte, MaxUnreliablePacket+1)); err != nil {
		t.Errorf("reliable channel should accept %d bytes: %v", MaxUnreliablePacket+1, err)
	}
	if err := ValidateReliable(nil); !errors.Is(err, ErrPacketEmpty) {
		t.Errorf("nil reliable packet: got %v", err)
	}
	if err := ValidateDiscovery(make([]byte, MaxDiscoveryPacket+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("oversized discovery packet: got %v", err)
	}
}

// TestErrorContext verifies that size errors carry the actual and maximum sizes
func TestErrorContext(t *testing.T) {
	err := ValidatePacket(make([]byte, 20), 16)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "20") || !strings.Contains(err.Error(), "16") {
		t.Errorf("error %q lacks size context", err)
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName(""); err != nil {
		t.Errorf("empty name rejected: %v", err)
	}
	if err := ValidateName(strings.Repeat("x", MaxNameLength)); err != nil {
		t.Errorf("name at limit rejected: %v", err)
	}
	if err := ValidateName(strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("long name: got %v", err)
	}
}

func TestUnreliableFitsDatagram(t *testing.T) {
	// one channel byte is prepended by the host
	if MaxUnreliablePacket+1 > 1200 {
		t.Errorf("MaxUnreliablePacket %d does not fit a datagram frame", MaxUnreliablePacket)
	}
	if MaxDiscoveryPacket > 1232 {
		t.Errorf("MaxDiscoveryPacket %d exceeds minimum IPv6 UDP payload", MaxDiscoveryPacket)
	}
}
