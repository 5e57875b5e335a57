package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitewatch/internal/api"
	"sitewatch/internal/auth"
	"sitewatch/internal/cache"
	"sitewatch/internal/config"
	"sitewatch/internal/metrics"
	"sitewatch/internal/poller"
	"sitewatch/internal/realtime"
	"sitewatch/internal/websites"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		websiteID  = flag.Int("website", 0, "id of the website to watch (0 lists websites and exits)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	tokens := auth.NewTokenStore()
	client := api.New(cfg.APIBaseURL, time.Duration(cfg.RequestTimeoutSec)*time.Second, tokens)
	session := auth.NewSessionManager(client, tokens)
	client.SetRefresher(session)
	client.SetOnAuthExpired(func() {
		log.Printf("session expired, login required")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup refresh gates everything: no protected request fires before
	// its outcome is known.
	if err := session.Refresh(ctx); err != nil {
		if cfg.Username == "" {
			log.Fatalf("no session to resume and no credentials configured: %v", err)
		}
		if !session.Login(ctx, cfg.Username, cfg.Password) {
			log.Fatalf("invalid credentials")
		}
	}
	if user := session.User(); user != nil {
		log.Printf("authenticated as %s", user.Username)
	}

	session.StartAutoRefresh()
	defer session.StopAutoRefresh()
	defer logout(session)

	service := websites.NewService(client)

	if *websiteID == 0 {
		listWebsites(ctx, service)
		return
	}

	store := cache.New(cfg.RecentChecksLimit)
	defer store.Release(*websiteID)

	pull := poller.New(time.Duration(cfg.PollIntervalSec)*time.Second, *websiteID, service, store)
	pull.Start()
	defer pull.Stop()

	channel := realtime.NewChannel(cfg.WebsocketURL, *websiteID, tokens, store, reconnectPolicy(cfg))
	channel.Start()
	defer channel.Stop()

	watchLoop(ctx, *websiteID, store, channel)
}

func listWebsites(ctx context.Context, service *websites.Service) {
	sites, err := service.List(ctx)
	if err != nil {
		log.Fatalf("list websites: %v", err)
	}
	for _, site := range sites {
		state := "DOWN"
		if site.LastStatus {
			state = "UP"
		}
		fmt.Printf("%4d  %-6s %-30s %s\n", site.ID, state, site.Name, site.URL)
	}
}

// watchLoop renders the watched website until shutdown. The 1-second tick
// drives the "time since last check" line from the channel's fast-path
// signal; cache watch events print full snapshots.
func watchLoop(ctx context.Context, websiteID int, store *cache.Cache, channel *realtime.Channel) {
	updates := store.Watch(websiteID)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastChecked time.Time
	if entry, ok := store.Get(websiteID); ok && entry.Website.LastChecked != nil {
		lastChecked = *entry.Website.LastChecked
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-channel.LastChecked():
			lastChecked = ts
		case _, ok := <-updates:
			if !ok {
				return
			}
			printSnapshot(websiteID, store)
		case <-ticker.C:
			if !lastChecked.IsZero() {
				fmt.Printf("\rlast check %s ago   ", time.Since(lastChecked).Truncate(time.Second))
			}
		}
	}
}

func printSnapshot(websiteID int, store *cache.Cache) {
	entry, ok := store.Get(websiteID)
	if !ok {
		return
	}

	state := "DOWN"
	if entry.Website.LastStatus {
		state = "UP"
	}
	summary := metrics.Summarize(entry.RecentChecks)
	fmt.Printf("\n%s [%s] uptime(24h) %.2f%% avg %.0fms, last %d checks: %.2f%% up avg %.0fms\n",
		entry.Website.Name, state,
		entry.Metrics.Uptime24h, entry.Metrics.AvgResponse24h,
		summary.TotalChecks, summary.UptimePercent, summary.AvgResponseMS)
}

func reconnectPolicy(cfg config.Config) realtime.ReconnectPolicy {
	delay := time.Duration(cfg.ReconnectDelaySec) * time.Second
	if cfg.ReconnectPolicy == config.PolicyBackoff {
		return realtime.Backoff{Initial: delay, Max: 2 * time.Minute}
	}
	return realtime.FixedDelay{D: delay}
}

func logout(session *auth.SessionManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session.Logout(ctx)
}
