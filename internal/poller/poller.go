package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"sitewatch/internal/cache"
	"sitewatch/internal/websites"
)

const minInterval = 15 * time.Second

// Poller periodically re-fetches the watched website's full detail into the
// cache. The pull snapshot is authoritative, so each round replaces the
// cache entry wholesale and bounds the staleness any push delta can leave
// behind.
type Poller struct {
	interval  time.Duration
	websiteID int
	service   *websites.Service
	cache     *cache.Cache

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a poller for the given website and interval.
func New(interval time.Duration, websiteID int, service *websites.Service, store *cache.Cache) *Poller {
	if interval < minInterval {
		interval = minInterval
	}

	return &Poller{
		interval:  interval,
		websiteID: websiteID,
		service:   service,
		cache:     store,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the refresh loop in a goroutine.
func (p *Poller) Start() {
	go p.run()
}

// Stop requests graceful loop termination and waits until it is done.
func (p *Poller) Stop() {
	select {
	case <-p.doneCh:
		return
	default:
	}
	close(p.stopCh)
	<-p.doneCh
}

// RunOnce fetches the website detail and replaces its cache entry.
func (p *Poller) RunOnce(ctx context.Context) error {
	detail, err := p.service.Get(ctx, p.websiteID)
	if err != nil {
		return fmt.Errorf("refresh website %d: %w", p.websiteID, err)
	}
	p.cache.ReplaceDetail(detail)
	return nil
}

func (p *Poller) run() {
	defer close(p.doneCh)

	if err := p.RunOnce(context.Background()); err != nil {
		log.Printf("initial fetch failed: %v", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.RunOnce(context.Background()); err != nil {
				log.Printf("poll tick failed: %v", err)
			}
		case <-p.stopCh:
			return
		}
	}
}
