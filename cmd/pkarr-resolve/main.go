package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jroosing/pkarr/internal/config"
	"github.com/jroosing/pkarr/internal/dht"
	"github.com/jroosing/pkarr/internal/keys"
	"github.com/jroosing/pkarr/internal/logging"
	"github.com/jroosing/pkarr/internal/pkarr"
	"github.com/jroosing/pkarr/internal/relay"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to JSON configuration file (or set PKARR_CONFIG)")
		bootstrap  = flag.String("bootstrap", "", "Comma-separated bootstrap nodes (overrides config)")
		relayURL   = flag.String("relay", "", "Resolve via this relay URL instead of the DHT")
		attempts   = flag.Int("attempts", 0, "Maximum nodes to query (0 = config default)")
		timeout    = flag.Duration("timeout", 0, "Overall lookup deadline (0 = config default)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: pkarr-resolve [flags] <z-base-32 public key>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	target, err := keys.PublicKeyFromString(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid public key: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Logging.Level = "DEBUG"
	}
	logger := logging.Configure(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		IncludePID:  cfg.Logging.IncludePID,
		ExtraFields: cfg.Logging.ExtraFields,
	})

	ctx := context.Background()

	if *relayURL != "" {
		start := time.Now()
		sp, err := relay.NewClient(*relayURL).Resolve(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relay resolve failed: %v\n", err)
			os.Exit(1)
		}
		printPacket(sp, cfg, time.Since(start))
		return
	}

	nodes := cfg.DHT.BootstrapNodes
	if *bootstrap != "" {
		nodes = strings.Split(*bootstrap, ",")
	}
	if *attempts <= 0 {
		*attempts = cfg.DHT.MaxAttempts
	}
	if *timeout <= 0 {
		*timeout = cfg.DHT.LookupTimeout()
	}

	engine, err := dht.NewEngine(dht.Config{
		BootstrapNodes:  nodes,
		MinTTL:          cfg.DHT.MinTTL(),
		MaxTTL:          cfg.DHT.MaxTTL(),
		QueryTimeout:    cfg.DHT.QueryTimeout(),
		CacheMaxEntries: cfg.DHT.CacheMaxEntries,
		Fetcher:         relay.NewClient(""),
		Logger:          logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create engine: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	sp, err := engine.Lookup(ctx, target, *attempts, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
		os.Exit(1)
	}
	cold := time.Since(start)
	printPacket(sp, cfg, cold)

	// Second lookup to show the cache at work.
	start = time.Now()
	if _, err := engine.Lookup(ctx, target, *attempts, *timeout); err == nil {
		fmt.Printf("\ncold lookup: %s, cached lookup: %s\n", cold.Round(time.Millisecond), time.Since(start))
	}
}

func printPacket(sp *pkarr.SignedPacket, cfg *config.Config, elapsed time.Duration) {
	fmt.Printf("%s\n", sp)
	fmt.Printf("resolved in %s, expires in %s\n",
		elapsed.Round(time.Millisecond),
		sp.ExpiresIn(cfg.DHT.MinTTL(), cfg.DHT.MaxTTL()),
	)
	fmt.Println("RECORDS:")
	for _, rr := range sp.Packet().Answers {
		fmt.Printf("  %s\n", rr)
	}
}
