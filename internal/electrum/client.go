// Package electrum is a minimal Electrum protocol client used by the scan
// command for watch-only balance and history lookups against a public
// Electrum server. It is not used for signing or broadcast: this tool
// never moves funds.
package electrum

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Client represents an Electrum protocol client connection.
type Client struct {
	conn     net.Conn
	mu       sync.Mutex
	id       atomic.Uint64
	host     string
	port     string
	useTLS   bool
	respChan map[uint64]chan *rpcResponse
	respMu   sync.Mutex
	closed   bool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Balance is the confirmed/unconfirmed balance of a scripthash.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// UTXO is one unspent output reported for a scripthash.
type UTXO struct {
	TxHash string `json:"tx_hash"`
	TxPos  int    `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// HistoryEntry is one transaction touching a scripthash.
type HistoryEntry struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
}

// NewClient dials url ("ssl://host:port" or "tcp://host:port", defaulting
// to TLS) and negotiates the Electrum protocol version.
func NewClient(url string) (*Client, error) {
	c := &Client{respChan: make(map[uint64]chan *rpcResponse)}

	if err := c.parseURL(url); err != nil {
		return nil, err
	}
	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.readResponses()

	if err := c.negotiateVersion(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) parseURL(url string) error {
	switch {
	case strings.HasPrefix(url, "ssl://"):
		c.useTLS = true
		url = strings.TrimPrefix(url, "ssl://")
	case strings.HasPrefix(url, "tcp://"):
		c.useTLS = false
		url = strings.TrimPrefix(url, "tcp://")
	default:
		c.useTLS = true
	}

	parts := strings.Split(url, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid electrum server address %q: expected host:port", url)
	}
	c.host, c.port = parts[0], parts[1]
	return nil
}

func (c *Client) connect() error {
	addr := net.JoinHostPort(c.host, c.port)

	var conn net.Conn
	var err error
	if c.useTLS {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: c.host,
		})
	} else {
		conn, err = net.DialTimeout("tcp", addr, 30*time.Second)
	}
	if err != nil {
		return fmt.Errorf("connecting to electrum server %s: %w", addr, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) readResponses() {
	decoder := json.NewDecoder(c.conn)
	for {
		var resp rpcResponse
		if err := decoder.Decode(&resp); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.respMu.Lock()
				for _, ch := range c.respChan {
					close(ch)
				}
				c.respChan = make(map[uint64]chan *rpcResponse)
				c.respMu.Unlock()
			}
			return
		}

		c.respMu.Lock()
		if ch, ok := c.respChan[resp.ID]; ok {
			ch <- &resp
			delete(c.respChan, resp.ID)
		}
		c.respMu.Unlock()
	}
}

func (c *Client) call(method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("electrum client is closed")
	}
	c.mu.Unlock()

	id := c.id.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	respCh := make(chan *rpcResponse, 1)
	c.respMu.Lock()
	c.respChan[id] = respCh
	c.respMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	c.mu.Lock()
	_, err = c.conn.Write(data)
	c.mu.Unlock()
	if err != nil {
		c.respMu.Lock()
		delete(c.respChan, id)
		c.respMu.Unlock()
		return nil, fmt.Errorf("sending electrum request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("electrum connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("electrum error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.respMu.Lock()
		delete(c.respChan, id)
		c.respMu.Unlock()
		return nil, fmt.Errorf("electrum request timed out")
	}
}

func (c *Client) negotiateVersion() error {
	result, err := c.call("server.version", "reserves-scan", "1.4")
	if err != nil {
		return fmt.Errorf("electrum version negotiation failed: %w", err)
	}
	var version []string
	return json.Unmarshal(result, &version)
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// GetBalance returns the confirmed/unconfirmed balance of a scripthash.
func (c *Client) GetBalance(scripthash string) (*Balance, error) {
	result, err := c.call("blockchain.scripthash.get_balance", scripthash)
	if err != nil {
		return nil, err
	}
	var balance Balance
	if err := json.Unmarshal(result, &balance); err != nil {
		return nil, fmt.Errorf("parsing balance: %w", err)
	}
	return &balance, nil
}

// ListUnspent returns unspent outputs for a scripthash.
func (c *Client) ListUnspent(scripthash string) ([]UTXO, error) {
	result, err := c.call("blockchain.scripthash.listunspent", scripthash)
	if err != nil {
		return nil, err
	}
	var utxos []UTXO
	if err := json.Unmarshal(result, &utxos); err != nil {
		return nil, fmt.Errorf("parsing utxos: %w", err)
	}
	return utxos, nil
}

// GetHistory returns the transaction history of a scripthash.
func (c *Client) GetHistory(scripthash string) ([]HistoryEntry, error) {
	result, err := c.call("blockchain.scripthash.get_history", scripthash)
	if err != nil {
		return nil, err
	}
	var txs []HistoryEntry
	if err := json.Unmarshal(result, &txs); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return txs, nil
}
