// Package localaddr discovers the local IPv4 address of a named interface,
// used for spec.md §6's local-host filtering. If discovery fails, callers
// disable local-host filtering rather than treat it as fatal.
package localaddr

import "net"

// FirstIPv4 returns the first IPv4 address bound to the named interface.
func FirstIPv4(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", errNoIPv4{name}
}

type errNoIPv4 struct{ iface string }

func (e errNoIPv4) Error() string { return "localaddr: no IPv4 address on interface " + e.iface }
