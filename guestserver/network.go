package guestserver

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/boxlite/boxlite/controlplane/rpc"
	"github.com/boxlite/boxlite/internal/boxerr"
)

// configureNetwork applies the IP/gateway Guest.Init declared to the
// guest's network interface (spec §4.9 "configure network interface with
// IP/gateway").
func configureNetwork(cfg *rpc.NetworkInterfaceConfig) error {
	if cfg == nil {
		return nil
	}

	link, err := netlink.LinkByName(cfg.Interface)
	if err != nil {
		return boxerr.Wrapf(boxerr.Network, err, "find interface %s", cfg.Interface)
	}

	addr, err := netlink.ParseAddr(cfg.IPCIDR)
	if err != nil {
		return boxerr.Wrapf(boxerr.Config, err, "parse address %s", cfg.IPCIDR)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return boxerr.Wrapf(boxerr.Network, err, "add address %s to %s", cfg.IPCIDR, cfg.Interface)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return boxerr.Wrapf(boxerr.Network, err, "bring up %s", cfg.Interface)
	}

	if cfg.Gateway != "" {
		gw := net.ParseIP(cfg.Gateway)
		if gw == nil {
			return boxerr.Newf(boxerr.Config, "invalid gateway address %q", cfg.Gateway)
		}
		route := &netlink.Route{LinkIndex: link.Attrs().Index, Gw: gw}
		if err := netlink.RouteAdd(route); err != nil {
			return boxerr.Wrapf(boxerr.Network, err, "add default route via %s", cfg.Gateway)
		}
	}
	return nil
}
