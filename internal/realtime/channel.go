package realtime

import (
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sitewatch/internal/cache"
	"sitewatch/internal/models"
)

const handshakeTimeout = 10 * time.Second

// TokenSource yields the current access token. The channel reads it at every
// connect, so a reconnect after token rotation uses the fresh token rather
// than one captured at first dial.
type TokenSource interface {
	AccessToken() string
}

var errTornDown = errors.New("channel torn down")

// Channel maintains the push connection for one watched website while a
// session is authenticated. Inbound frames for the watched id reset the
// fast-path last-checked signal and merge into the cache; frames for other
// websites are dropped. A closed connection schedules one reconnect per the
// policy, unless the channel has been torn down in the interim.
type Channel struct {
	wsURL     string
	websiteID int
	tokens    TokenSource
	cache     *cache.Cache
	policy    ReconnectPolicy

	dialer      *websocket.Dialer
	lastChecked chan time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewChannel creates a channel for the given website. A nil policy falls
// back to the fixed default delay.
func NewChannel(wsURL string, websiteID int, tokens TokenSource, store *cache.Cache, policy ReconnectPolicy) *Channel {
	if policy == nil {
		policy = FixedDelay{D: DefaultReconnectDelay}
	}
	return &Channel{
		wsURL:       wsURL,
		websiteID:   websiteID,
		tokens:      tokens,
		cache:       store,
		policy:      policy,
		dialer:      &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		lastChecked: make(chan time.Time, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// LastChecked is the low-latency observable for the live timer. It carries
// the newest observed check time, coalesced latest-wins, decoupled from the
// cache update path.
func (c *Channel) LastChecked() <-chan time.Time {
	return c.lastChecked
}

// Start launches the connection loop in a goroutine.
func (c *Channel) Start() {
	go c.run()
}

// Stop tears the channel down and waits for the loop to finish. The stop
// mark is set before the socket is closed, so the deliberate close never
// schedules a reconnect.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.doneCh
		return
	}
	c.stopped = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stopCh)
	if conn != nil {
		conn.Close()
	}
	<-c.doneCh
}

func (c *Channel) run() {
	defer close(c.doneCh)

	attempt := 0
	for {
		conn, err := c.dial()
		if errors.Is(err, errTornDown) {
			return
		}
		if err != nil {
			attempt++
			delay := c.policy.Delay(attempt)
			log.Printf("monitor channel connect failed: %v (retrying in %s)", err, delay)
			if !c.sleep(delay) {
				return
			}
			continue
		}

		if !c.track(conn) {
			conn.Close()
			return
		}
		attempt = 0
		log.Printf("monitor channel connected for website %d", c.websiteID)

		c.readLoop(conn)
		c.untrack()

		if c.isStopped() {
			return
		}
		attempt++
		if !c.sleep(c.policy.Delay(attempt)) {
			return
		}
	}
}

// dial connects with the token current at this instant. A missing token
// means the session is gone and the channel is terminal.
func (c *Channel) dial() (*websocket.Conn, error) {
	if c.isStopped() {
		return nil, errTornDown
	}
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, errTornDown
	}

	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("token", token)
	u.RawQuery = query.Encode()

	conn, resp, err := c.dialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var update models.StatusUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return
		}
		c.handle(update)
	}
}

func (c *Channel) handle(update models.StatusUpdate) {
	id, ok := update.Website.WebsiteID()
	if !ok || id != c.websiteID {
		return
	}

	// Fast path first: the live timer must not inherit cache latency.
	if observed, ok := update.ObservedAt(); ok {
		c.publishLastChecked(observed)
	}
	c.cache.ApplyUpdate(update)
}

func (c *Channel) publishLastChecked(ts time.Time) {
	select {
	case c.lastChecked <- ts:
		return
	default:
	}
	// Buffer full: drop the stale value, keep the newest.
	select {
	case <-c.lastChecked:
	default:
	}
	select {
	case c.lastChecked <- ts:
	default:
	}
}

// track registers the live connection so Stop can close it. Reports false
// when the channel was torn down while dialing.
func (c *Channel) track(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.conn = conn
	return true
}

func (c *Channel) untrack() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Channel) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// sleep waits for the reconnect delay, reporting false when the channel was
// stopped while waiting.
func (c *Channel) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stopCh:
		return false
	}
}
