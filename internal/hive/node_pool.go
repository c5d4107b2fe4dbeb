package hive

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/community-pulse/internal/circuitbreaker"
	"github.com/community-pulse/internal/logging"
)

// NodePool manages the Hive API nodes with failover.
// Strategy: stick to the current node until a call fails, then cool it down
// and move to the next one.
type NodePool struct {
	endpoints    []string
	clients      []*rpc.Client
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time
	cooldownTime time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

// NodePoolConfig holds configuration for creating a node pool
type NodePoolConfig struct {
	Endpoints []string
	// CooldownTime is how long a failed node is skipped. Default: 60 seconds
	CooldownTime time.Duration
	// HTTPClient is shared by every node connection. Default: http.DefaultClient
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// node is the pool's current choice for one call
type node struct {
	index  int
	url    string
	client *rpc.Client
}

// NewNodePool creates a pool. Connections are dialed lazily.
func NewNodePool(cfg NodePoolConfig) (*NodePool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one Hive node is required")
	}

	cooldown := cfg.CooldownTime
	if cooldown == 0 {
		cooldown = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &NodePool{
		endpoints:    append([]string(nil), cfg.Endpoints...),
		clients:      make([]*rpc.Client, len(cfg.Endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldown,
		httpClient:   httpClient,
		logger:       logger.WithComponent("hive_nodes"),
	}, nil
}

// current returns the active node, dialing it on first use
func (p *NodePool) current() (node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.dial(p.currentIndex); err != nil {
		return node{}, err
	}
	i := p.currentIndex
	return node{index: i, url: p.endpoints[i], client: p.clients[i]}, nil
}

// dial connects endpoint index if needed (must hold lock)
func (p *NodePool) dial(index int) error {
	if p.clients[index] != nil {
		return nil
	}
	client, err := rpc.DialHTTPWithClient(p.endpoints[index], p.httpClient)
	if err != nil {
		return fmt.Errorf("failed to connect to node %s: %w", p.endpoints[index], err)
	}
	p.clients[index] = client
	return nil
}

// MarkFailed puts the node at index in cooldown and moves to the next
// available node. If every node is cooling down the pool moves to the one
// whose cooldown expires first, so callers always have somewhere to go.
func (p *NodePool) MarkFailed(index int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[index] = time.Now()
	if index != p.currentIndex {
		// Another caller already moved on
		return
	}

	n := len(p.endpoints)
	if n == 1 {
		return
	}

	oldest := -1
	for i := 1; i < n; i++ {
		next := (index + i) % n
		since, cooling := p.cooldowns[next]
		if !cooling || time.Since(since) >= p.cooldownTime {
			delete(p.cooldowns, next)
			p.switchTo(index, next, cause)
			return
		}
		if oldest == -1 || since.Before(p.cooldowns[oldest]) {
			oldest = next
		}
	}

	p.logger.Warnf("All %d Hive nodes are cooling down, using least recently failed", n)
	p.switchTo(index, oldest, cause)
}

// switchTo must hold lock
func (p *NodePool) switchTo(from, to int, cause error) {
	p.currentIndex = to
	l := p.logger.WithFields(map[string]interface{}{
		"from": p.endpoints[from],
		"to":   p.endpoints[to],
	})
	l.WithError(cause).Warn("Switching Hive node")
}

// TryResetToPrimary switches back to the first node once its cooldown has
// expired. Returns true when the primary is current.
func (p *NodePool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}
	if since, ok := p.cooldowns[0]; ok {
		if time.Since(since) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}

	p.currentIndex = 0
	p.logger.Info("Reset to primary Hive node")
	return true
}

// CurrentURL returns the active node URL
func (p *NodePool) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.currentIndex]
}

// Close closes all node connections
func (p *NodePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.clients {
		if c != nil {
			c.Close()
			p.clients[i] = nil
		}
	}
}

// Status returns the current status of the pool
func (p *NodePool) Status() *PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := &PoolStatus{
		CurrentURL: p.endpoints[p.currentIndex],
		Nodes:      make([]NodeStatus, len(p.endpoints)),
	}
	for i, url := range p.endpoints {
		ns := NodeStatus{
			URL:       url,
			Connected: p.clients[i] != nil,
			IsCurrent: i == p.currentIndex,
		}
		if since, ok := p.cooldowns[i]; ok {
			if remaining := p.cooldownTime - time.Since(since); remaining > 0 {
				ns.InCooldown = true
				ns.CooldownRemaining = remaining
			}
		}
		status.Nodes[i] = ns
	}
	return status
}

// PoolStatus represents the current status of the node pool
type PoolStatus struct {
	CurrentURL string                `json:"currentUrl"`
	Nodes      []NodeStatus          `json:"nodes"`
	Breaker    *circuitbreaker.Stats `json:"breaker,omitempty"`
}

// NodeStatus represents the status of a single node
type NodeStatus struct {
	URL               string        `json:"url"`
	Connected         bool          `json:"connected"`
	IsCurrent         bool          `json:"isCurrent"`
	InCooldown        bool          `json:"inCooldown"`
	CooldownRemaining time.Duration `json:"cooldownRemaining"`
}
