package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

// SSHDialer opens sessions over SSH, using SFTP for file operations.
type SSHDialer struct{}

// Dial connects, authenticates and starts the SFTP subsystem. Failures are
// returned as is; retrying a connect is left to the caller.
func (SSHDialer) Dial(ctx context.Context, ep Endpoint) (Session, error) {
	cfg, err := clientConfig(ep)
	if err != nil {
		return nil, err
	}

	addr := ep.Address()
	d := net.Dialer{Timeout: ep.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if ep.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(ep.Timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem on %s: %w", addr, err)
	}

	plog.Info("Connected", "host", addr, "user", ep.Username)
	return newSSHSession(client, sftpClient), nil
}

func clientConfig(ep Endpoint) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if ep.PrivateKeyPath != "" {
		keyPath, err := util.ExpandPath(ep.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", keyPath, err)
		}
		var signer ssh.Signer
		if ep.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(ep.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", keyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if ep.Password != "" {
		password := ep.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials configured: set a password or a private key")
	}

	hostKeyCallback, err := hostKeyCallback(ep)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            ep.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         ep.Timeout,
	}, nil
}

func hostKeyCallback(ep Endpoint) (ssh.HostKeyCallback, error) {
	if ep.InsecureIgnoreHostKey {
		plog.Warn("Host key verification is disabled", "host", ep.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := ep.KnownHostsPath
	if path == "" {
		path = "~/.ssh/known_hosts"
	}
	path, err := util.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts from %s: %w", path, err)
	}
	return cb, nil
}

type sshSession struct {
	client *ssh.Client
	sftp   *sftp.Client
}

func newSSHSession(client *ssh.Client, sftpClient *sftp.Client) *sshSession {
	return &sshSession{client: client, sftp: sftpClient}
}

func (s *sshSession) Exec(ctx context.Context, cmd string, stderr io.Writer) (string, error) {
	if s.client == nil {
		return "", errors.New("remote command execution is not available on this session")
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer sess.Close()

	var stdout bytes.Buffer
	sess.Stdout = &stdout
	if stderr != nil {
		sess.Stderr = stderr
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		// Run may still be writing to stdout, so it is not read here.
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("remote command %q failed: %w", cmd, err)
		}
		return stdout.String(), nil
	}
}

func (s *sshSession) Stat(path string) (os.FileInfo, error) {
	return s.sftp.Stat(path)
}

func (s *sshSession) Mkdir(path string, perm os.FileMode) error {
	if err := s.sftp.Mkdir(path); err != nil {
		return err
	}
	if err := s.sftp.Chmod(path, perm); err != nil {
		plog.Warn("Could not set permissions on remote directory", "path", path, "mode", perm, "error", err)
	}
	return nil
}

func (s *sshSession) Create(path string) (io.WriteCloser, error) {
	return s.sftp.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (s *sshSession) Rename(oldPath, newPath string) error {
	if err := s.sftp.PosixRename(oldPath, newPath); err == nil {
		return nil
	}
	return s.sftp.Rename(oldPath, newPath)
}

func (s *sshSession) Close() error {
	var errs []error
	if s.sftp != nil {
		errs = append(errs, s.sftp.Close())
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	return errors.Join(errs...)
}
