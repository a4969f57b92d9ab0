package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"golang.org/x/crypto/ssh"
)

const dialTimeout = 30 * time.Second

// Session runs commands on one remote host.
type Session interface {
	// Run executes cmd and returns its output and exit code. When ctx ends
	// first the remote command is killed and ctx.Err() is returned.
	Run(ctx context.Context, cmd string) (stdout, stderr string, exitCode int, err error)
	Close() error
}

// Dialer opens a Session with the given credentials.
type Dialer func(ctx context.Context, creds models.SSHCredentials) (Session, error)

// DialSSH connects over SSH with password or private key authentication.
// Host keys are not verified.
func DialSSH(ctx context.Context, creds models.SSHCredentials) (Session, error) {
	creds = creds.WithDefaults()

	auth, err := authMethods(creds)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User: creds.Username,
		Auth: auth,
		// TODO: accept a known_hosts file once hosts are enrolled with their keys.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(creds.Hostname, strconv.Itoa(creds.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return &sshSession{client: ssh.NewClient(c, chans, reqs)}, nil
}

func authMethods(creds models.SSHCredentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if creds.PrivateKey != "" {
		pem := []byte(creds.PrivateKey)
		if !strings.Contains(creds.PrivateKey, "PRIVATE KEY") {
			data, err := os.ReadFile(creds.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			pem = data
		}

		var (
			signer ssh.Signer
			err    error
		)
		if creds.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(creds.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no password or private key supplied")
	}
	return methods, nil
}

// sshSession opens one ssh channel per command over a shared client.
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) Run(ctx context.Context, cmd string) (string, string, int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		<-done
		return stdout.String(), stderr.String(), -1, ctx.Err()
	case err = <-done:
	}

	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
	}
	return stdout.String(), stderr.String(), -1, err
}

func (s *sshSession) Close() error {
	return s.client.Close()
}
