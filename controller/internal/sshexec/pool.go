package sshexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
)

var ErrConnectFailed = errors.New("ssh connection failed")

// Pool caches one Connector per hostname. A Connector is leased to one
// caller at a time.
type Pool struct {
	dial           Dialer
	workDir        string
	commandTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*poolEntry
}

type poolEntry struct {
	conn  *Connector
	lease chan struct{}
}

// NewPool creates an empty pool. Zero values fall back to the Connector
// defaults.
func NewPool(dial Dialer, workDir string, commandTimeout time.Duration) *Pool {
	return &Pool{
		dial:           dial,
		workDir:        workDir,
		commandTimeout: commandTimeout,
		entries:        make(map[string]*poolEntry),
	}
}

// Acquire leases the connected Connector for creds.Hostname, blocking while
// another caller holds it. The returned release func must be called.
func (p *Pool) Acquire(ctx context.Context, creds models.SSHCredentials) (*Connector, func(), error) {
	creds = creds.WithDefaults()
	entry := p.entry(creds)

	select {
	case entry.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	release := func() { <-entry.lease }

	if entry.conn.creds != creds {
		entry.conn.Disconnect()
		entry.conn = p.newConnector(creds)
	}
	if !entry.conn.Connect(ctx) {
		release()
		return nil, nil, fmt.Errorf("%w: %s", ErrConnectFailed, creds.Hostname)
	}
	return entry.conn, release, nil
}

func (p *Pool) entry(creds models.SSHCredentials) *poolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[creds.Hostname]
	if !ok {
		entry = &poolEntry{
			conn:  p.newConnector(creds),
			lease: make(chan struct{}, 1),
		}
		p.entries[creds.Hostname] = entry
	}
	return entry
}

func (p *Pool) newConnector(creds models.SSHCredentials) *Connector {
	conn := NewConnector(creds, p.dial)
	if p.workDir != "" {
		conn.WorkDir = p.workDir
	}
	if p.commandTimeout > 0 {
		conn.CommandTimeout = p.commandTimeout
	}
	return conn
}

// CloseAll disconnects every cached Connector.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for host, entry := range p.entries {
		entry.conn.Disconnect()
		delete(p.entries, host)
	}
}
