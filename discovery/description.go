package discovery

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// ServerInfo is what an advertiser publishes about its server.
type ServerInfo struct {
	// Port is the game port clients connect to.
	Port     uint16
	ServerID uuid.UUID
	// Name is the display name. An empty name marks a private server that
	// never answers discovery requests.
	Name           string
	HasPassword    bool
	HasWhitelist   bool
	GameMode       uint8
	CurrentPlayers uint32
	MaxPlayers     uint32
	LevelName      string
	Version        uint64
}

// Private reports whether the server must stay hidden.
func (i ServerInfo) Private() bool {
	return i.Name == ""
}

func (i ServerInfo) response() Response {
	return Response{
		Port:           i.Port,
		ServerID:       i.ServerID,
		Name:           i.Name,
		HasPassword:    i.HasPassword,
		HasWhitelist:   i.HasWhitelist,
		GameMode:       i.GameMode,
		CurrentPlayers: i.CurrentPlayers,
		MaxPlayers:     i.MaxPlayers,
		LevelName:      i.LevelName,
		Version:        i.Version,
	}
}

// ServerInfoProvider supplies the advertised information. It is called from
// the advertiser's goroutine for every accepted request.
type ServerInfoProvider interface {
	ServerInfo() ServerInfo
}

// ServerInfoFunc adapts a function to ServerInfoProvider.
type ServerInfoFunc func() ServerInfo

func (f ServerInfoFunc) ServerInfo() ServerInfo {
	return f()
}

// ServerDescription describes one discovered server.
type ServerDescription struct {
	// EndPoints are the addresses the server was seen at, with the game port.
	EndPoints      []netip.AddrPort
	ID             uuid.UUID
	Name           string
	GameMode       uint8
	CurrentPlayers uint32
	MaxPlayers     uint32
	LevelName      string
	HasPassword    bool
	HasWhitelist   bool
	Version        uint64
	// IsCompatible reports whether Version can play with the local build.
	IsCompatible bool
	// IsLocal marks servers found by LAN discovery.
	IsLocal  bool
	LastSeen time.Time
}

// EndPoint returns the first endpoint as a UDP address, or nil.
func (d ServerDescription) EndPoint() *net.UDPAddr {
	if len(d.EndPoints) == 0 {
		return nil
	}
	return net.UDPAddrFromAddrPort(d.EndPoints[0])
}

// IsFull reports whether the server has no free player slot.
func (d ServerDescription) IsFull() bool {
	return d.MaxPlayers > 0 && d.CurrentPlayers >= d.MaxPlayers
}

// Observer is notified of every valid discovery response. It is called from
// the listener's goroutine.
type Observer interface {
	OnServerFound(desc ServerDescription)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(desc ServerDescription)

func (f ObserverFunc) OnServerFound(desc ServerDescription) {
	f(desc)
}

// describe builds a ServerDescription from a response received from src.
func describe(r Response, src net.Addr, localVersion uint64, seen time.Time) ServerDescription {
	desc := ServerDescription{
		ID:             r.ServerID,
		Name:           r.Name,
		GameMode:       r.GameMode,
		CurrentPlayers: r.CurrentPlayers,
		MaxPlayers:     r.MaxPlayers,
		LevelName:      r.LevelName,
		HasPassword:    r.HasPassword,
		HasWhitelist:   r.HasWhitelist,
		Version:        r.Version,
		IsCompatible:   IsCompatible(localVersion, r.Version),
		IsLocal:        true,
		LastSeen:       seen,
	}
	if udp, ok := src.(*net.UDPAddr); ok {
		ap := udp.AddrPort()
		desc.EndPoints = []netip.AddrPort{netip.AddrPortFrom(ap.Addr().Unmap(), r.Port)}
	}
	return desc
}
