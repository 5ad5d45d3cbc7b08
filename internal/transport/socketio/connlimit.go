package socketio

import (
	"net"
	"strings"
	"sync"
)

// remoteLimiter caps how many remote-control clients from other hosts stay
// connected. Clients on the loopback interface, such as a kiosk UI running
// next to the player, are never counted. Once the cap is exceeded the
// longest-connected remote client is handed back for disconnection. A cap
// of 0 means no cap.
type remoteLimiter struct {
	mu      sync.Mutex
	max     int
	remotes []string        // socket ids from other hosts, oldest first
	clients map[string]bool // socket id -> connected from loopback
}

func newRemoteLimiter(max int) *remoteLimiter {
	return &remoteLimiter{max: max, clients: make(map[string]bool)}
}

// admit records a socket and returns the id of a remote client that must
// be disconnected to make room, or "".
func (l *remoteLimiter) admit(id, remoteAddr string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[id]; ok {
		return ""
	}
	local := isLoopback(remoteAddr)
	l.clients[id] = local
	if local {
		return ""
	}

	l.remotes = append(l.remotes, id)
	if l.max == 0 || len(l.remotes) <= l.max {
		return ""
	}
	oldest := l.remotes[0]
	l.remotes = l.remotes[1:]
	delete(l.clients, oldest)
	return oldest
}

// drop forgets a disconnected socket.
func (l *remoteLimiter) drop(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	local, ok := l.clients[id]
	if !ok {
		return
	}
	delete(l.clients, id)
	if local {
		return
	}
	for i, r := range l.remotes {
		if r == id {
			l.remotes = append(l.remotes[:i], l.remotes[i+1:]...)
			return
		}
	}
}

// counts returns the connected sockets and how many are remote.
func (l *remoteLimiter) counts() (total, remote int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients), len(l.remotes)
}

// isLoopback reports whether a handshake address ("ip", "ip:port",
// "[ip]:port" or an IPv4-mapped IPv6 address) is on the loopback network.
// Unparseable addresses count as remote.
func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
