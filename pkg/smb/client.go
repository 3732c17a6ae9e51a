package smb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/internal/metrics"
	"github.com/ineffectivecoder/smbclient/pkg/auth"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// Client owns one connection: transport, negotiated dialect, a session and
// the trees connected on it.
type Client struct {
	config    ClientConfig
	transport *Transport
	session   *Session
	negResult *NegotiateResult

	mu    sync.Mutex
	trees map[string]*Tree // keyed by upper-cased share name
}

// ClientConfig configures client behavior
type ClientConfig struct {
	Timeout        time.Duration
	RequireSigning bool
	Socks5URL      string // SOCKS5 proxy URL (e.g., "socks5://127.0.0.1:1080")
	Workstation    string
	Metrics        *metrics.Metrics
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:     30 * time.Second,
		Workstation: "SMBCLIENT",
	}
}

// NewClient creates a new SMB client
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		trees:  make(map[string]*Tree),
	}
}

// Connect dials host and negotiates a dialect.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	transport, err := Dial(ctx, host, port, TransportConfig{
		Timeout:   c.config.Timeout,
		Socks5URL: c.config.Socks5URL,
	})
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	return c.ConnectTransport(ctx, transport)
}

// ConnectTransport negotiates on an already established transport.
func (c *Client) ConnectTransport(ctx context.Context, transport *Transport) error {
	negResult, err := Negotiate(ctx, transport, c.config.RequireSigning)
	if err != nil {
		transport.Close()
		return fmt.Errorf("negotiation failed: %w", err)
	}
	c.transport = transport
	c.negResult = negResult
	c.session = NewSession(transport, negResult, SessionConfig{
		RequireSigning: c.config.RequireSigning,
		Workstation:    c.config.Workstation,
		Metrics:        c.config.Metrics,
	})
	return nil
}

// Authenticate performs session setup. It may be retried with different
// credentials on the same connection after a failure.
func (c *Client) Authenticate(ctx context.Context, creds auth.Credentials) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Authenticate(ctx, creds)
}

// Tree returns the tree for share, connecting it on first use.
func (c *Client) Tree(ctx context.Context, share string) (*Tree, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	key := strings.ToUpper(strings.Trim(share, `\/`))

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.trees[key]; ok {
		return t, nil
	}
	t, err := c.session.TreeConnect(ctx, share)
	if err != nil {
		return nil, err
	}
	c.trees[key] = t
	return t, nil
}

// IPC returns the IPC$ tree used for named-pipe RPC.
func (c *Client) IPC(ctx context.Context) (*Tree, error) {
	return c.Tree(ctx, "IPC$")
}

// Close disconnects every cached tree, logs off and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	c.mu.Lock()
	trees := c.trees
	c.trees = make(map[string]*Tree)
	c.mu.Unlock()

	if c.session.Broken() == nil {
		for name, t := range trees {
			if err := t.Disconnect(ctx); err != nil {
				debug.Debug("tree disconnect failed", debug.KeyShare, name, debug.KeyError, err)
			}
		}
	}
	return c.session.Logoff(ctx)
}

// Session returns the current session
func (c *Client) Session() *Session {
	return c.session
}

// NegotiateResult returns the negotiation result
func (c *Client) NegotiateResult() *NegotiateResult {
	return c.negResult
}

// IsConnected returns true if connected and authenticated
func (c *Client) IsConnected() bool {
	return c.session != nil && c.session.Broken() == nil && c.session.IsAuthenticated()
}

// Broken reports the transport failure that ended the connection, if any.
func (c *Client) Broken() error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Broken()
}

// Dialect returns the negotiated dialect
func (c *Client) Dialect() types.Dialect {
	if c.negResult != nil {
		return c.negResult.Dialect
	}
	return 0
}

// DialectName returns the negotiated dialect as a string
func (c *Client) DialectName() string {
	return DialectName(c.Dialect())
}
