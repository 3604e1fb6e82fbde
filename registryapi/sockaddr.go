package registryapi

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"github.com/xbusio/xbus-go/xbuserr"
)

// SocketAddr is a host:port pair, serialised at the wire boundary as its
// canonical string form (IPv6 hosts keep their bracketed literal), per
// spec §6/§9. Internally it's stored as host+port rather than carried
// around as a raw string, so malformed addresses are rejected once, at
// the parse boundary, rather than wherever they're later used.
type SocketAddr struct {
	Host string
	Port uint16
}

// ParseSocketAddr parses a "host:port" (or "[ipv6]:port") string,
// returning a descriptive error on malformed input, matching the
// teacher's-generation-removed custom serde Visitor's behavior in
// original_source/src/addr_serde.rs.
func ParseSocketAddr(s string) (SocketAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return SocketAddr{}, xbuserr.Serialization(invalidSocketAddr(s, err))
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return SocketAddr{}, xbuserr.Serialization(invalidSocketAddr(s, err))
	}
	return SocketAddr{Host: host, Port: uint16(port)}, nil
}

func invalidSocketAddr(s string, cause error) error {
	return &socketAddrError{addr: s, cause: cause}
}

type socketAddrError struct {
	addr  string
	cause error
}

func (e *socketAddrError) Error() string {
	return "invalid socket address " + strconv.Quote(e.addr) + ": " + e.cause.Error()
}

func (e *socketAddrError) Unwrap() error { return e.cause }

// String renders the canonical host:port form, bracketing IPv6 hosts.
func (a SocketAddr) String() string {
	if strings.Contains(a.Host, ":") {
		return "[" + a.Host + "]:" + strconv.FormatUint(uint64(a.Port), 10)
	}
	return net.JoinHostPort(a.Host, strconv.FormatUint(uint64(a.Port), 10))
}

// MarshalJSON renders the address as its canonical string form.
func (a SocketAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses the address from its canonical string form,
// rejecting malformed input with a descriptive error.
func (a *SocketAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return xbuserr.Serialization(err)
	}
	parsed, err := ParseSocketAddr(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
