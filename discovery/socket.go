package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv6"
)

// openSocket creates the IPv6 UDP socket used by both roles. The advertiser
// binds the discovery port and joins the group; the listener binds an
// ephemeral port and only sends to the group.
func openSocket(opts Options, port int, join bool) (net.PacketConn, error) {
	if opts.Group.To16() == nil || !opts.Group.IsMulticast() || opts.Group.To4() != nil {
		return nil, fmt.Errorf("discovery group %v is not an IPv6 multicast address", opts.Group)
	}

	var ifi *net.Interface
	if opts.Interface != "" {
		var err error
		ifi, err = net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, fmt.Errorf("discovery interface %q: %w", opts.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(context.Background(), "udp6", net.JoinHostPort("::", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("bind discovery socket: %w", err)
	}

	p := ipv6.NewPacketConn(conn)
	group := &net.UDPAddr{IP: opts.Group}
	if join {
		if err := joinGroup(p, ifi, group); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if err := p.SetMulticastHopLimit(1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set multicast hop limit: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable multicast loopback: %w", err)
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set multicast interface: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "openSocket",
		"local_addr": conn.LocalAddr().String(),
		"group":      opts.Group.String(),
		"interface":  opts.Interface,
		"joined":     join,
	}).Debug("Discovery socket ready")
	return conn, nil
}

// joinGroup joins the group on ifi. Without an explicit interface it tries
// the system default first and then every multicast capable interface.
func joinGroup(p *ipv6.PacketConn, ifi *net.Interface, group *net.UDPAddr) error {
	err := p.JoinGroup(ifi, group)
	if err == nil || ifi != nil {
		if err != nil {
			return fmt.Errorf("join %v on %s: %w", group.IP, ifi.Name, err)
		}
		return nil
	}

	ifaces, ierr := net.Interfaces()
	if ierr != nil {
		return errors.Join(err, ierr)
	}
	joined := 0
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if p.JoinGroup(iface, group) == nil {
			joined++
		}
	}
	if joined == 0 {
		return fmt.Errorf("join %v on any interface: %w", group.IP, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
