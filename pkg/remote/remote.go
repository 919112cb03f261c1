// Package remote is the boundary to the deploy host: a Session runs shell
// commands and manipulates remote files over one authenticated connection.
package remote

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// Session is an open connection to a remote host. Paths are POSIX paths on
// the remote side. Implementations must be safe for concurrent use.
type Session interface {
	// Exec runs cmd in a remote shell and returns its stdout. Anything the
	// command writes to stderr is copied to stderr when it is non-nil. A
	// non-zero exit status is an error.
	Exec(ctx context.Context, cmd string, stderr io.Writer) (string, error)
	Stat(path string) (os.FileInfo, error)
	Mkdir(path string, perm os.FileMode) error
	// Create opens path for writing, truncating an existing file.
	Create(path string) (io.WriteCloser, error)
	// Rename moves oldPath to newPath, replacing newPath where the server allows it.
	Rename(oldPath, newPath string) error
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Session, error)
}

// Endpoint describes how to reach and authenticate with the deploy host.
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
	// PrivateKeyPath, if set, enables public key authentication.
	PrivateKeyPath string
	Passphrase     string
	// KnownHostsPath is the known_hosts file used to verify the host key.
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
