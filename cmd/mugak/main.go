// Command mugak: crawl an EITB streaming platform, record geo-restriction
// verdicts, and export the JSON documents for the website.
//
//	scrape  Discover (or take explicit slugs), check each item, export JSON
//	check   One-off check of a single slug, print the stored verdict
//	export  Regenerate content.json / statistics.json / geo-restricted.json
//	stats   Print the database counters
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xezpeleta/eitbren-mugak/internal/client"
	"github.com/xezpeleta/eitbren-mugak/internal/config"
	"github.com/xezpeleta/eitbren-mugak/internal/export"
	"github.com/xezpeleta/eitbren-mugak/internal/metrics"
	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/scraper"
	"github.com/xezpeleta/eitbren-mugak/internal/store"
)

type scrapeFlags struct {
	media          []string
	series         []string
	limit          int
	delay          time.Duration
	metadataOnly   bool
	restrictedOnly bool
	missingMeta    bool
	channels       bool
	noExport       bool
	dbOverride     string
	outputDir      string
	multi          bool // -platform all: exports go under outputDir/{platform}
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[mugak] ")

	scrapeCmd := flag.NewFlagSet("scrape", flag.ExitOnError)
	scrapePlatform := scrapeCmd.String("platform", "primeran.eus", "Platform to crawl (primeran.eus, makusi.eus, etbon.eus, or all)")
	scrapeMedia := scrapeCmd.String("media", "", "Comma-separated media slugs (skip discovery)")
	scrapeSeries := scrapeCmd.String("series", "", "Comma-separated series slugs (skip discovery)")
	scrapeLimit := scrapeCmd.Int("limit", 0, "Cap media and series counts (0 = no cap)")
	scrapeDelay := scrapeCmd.Duration("delay", 0, "Spacing between requests (default: MUGAK_DELAY)")
	scrapeMetadataOnly := scrapeCmd.Bool("metadata-only", false, "Refresh metadata without geo probes; stored verdicts are kept")
	scrapeRestrictedOnly := scrapeCmd.Bool("geo-restricted-only", false, "Recheck only items currently marked restricted")
	scrapeMissingMeta := scrapeCmd.Bool("missing-metadata", false, "Recheck only items missing title or metadata")
	scrapeChannels := scrapeCmd.Bool("channels", false, "Also check the live channels page")
	scrapeNoExport := scrapeCmd.Bool("no-export", false, "Skip the JSON export after the crawl")
	scrapeDB := scrapeCmd.String("db", "", "Database path (default: MUGAK_DB_DIR per platform)")
	scrapeOutput := scrapeCmd.String("output", "", "Export directory (default: MUGAK_OUTPUT_DIR)")

	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkPlatform := checkCmd.String("platform", "primeran.eus", "Platform to check against")
	checkSeries := checkCmd.Bool("series", false, "Treat the slug as a series and check its episodes")
	checkDB := checkCmd.String("db", "", "Database path (default: MUGAK_DB_DIR per platform)")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportPlatform := exportCmd.String("platform", "primeran.eus", "Platform database to export (or all)")
	exportDB := exportCmd.String("db", "", "Database path (default: MUGAK_DB_DIR per platform)")
	exportOutput := exportCmd.String("output", "", "Export directory (default: MUGAK_OUTPUT_DIR)")

	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	statsPlatform := statsCmd.String("platform", "primeran.eus", "Platform database to read")
	statsDB := statsCmd.String("db", "", "Database path (default: MUGAK_DB_DIR per platform)")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <scrape|check|export|stats> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  scrape  Crawl a platform, record geo verdicts, export JSON\n")
		fmt.Fprintf(os.Stderr, "  check   Check one slug (-series for a series) and print the verdict\n")
		fmt.Fprintf(os.Stderr, "  export  Regenerate the JSON documents from the database\n")
		fmt.Fprintf(os.Stderr, "  stats   Print the database counters\n")
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "scrape":
		_ = scrapeCmd.Parse(os.Args[2:])
		if err := cfg.Validate(); err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		platforms, targets, err := selectPlatforms(cfg, *scrapePlatform)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}

		collector := metrics.NewCollector()
		if cfg.MetricsAddr != "" {
			srv := collector.Serve(cfg.MetricsAddr, func(err error) {
				log.Printf("Metrics listener failed: %v", err)
			})
			defer srv.Close()
			log.Printf("Serving metrics on %s", cfg.MetricsAddr)
		}

		outDir := cfg.OutputDir
		if *scrapeOutput != "" {
			outDir = *scrapeOutput
		}
		flags := scrapeFlags{
			media:          splitSlugs(*scrapeMedia),
			series:         splitSlugs(*scrapeSeries),
			limit:          *scrapeLimit,
			delay:          cfg.Delay,
			metadataOnly:   *scrapeMetadataOnly,
			restrictedOnly: *scrapeRestrictedOnly,
			missingMeta:    *scrapeMissingMeta,
			channels:       *scrapeChannels,
			noExport:       *scrapeNoExport,
			dbOverride:     *scrapeDB,
			outputDir:      outDir,
			multi:          len(targets) > 1,
		}
		if *scrapeDelay > 0 {
			flags.delay = *scrapeDelay
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for _, p := range targets {
			if err := crawlPlatform(ctx, cfg, p, platforms, collector, flags); err != nil {
				log.Printf("Crawl %s failed: %v", p.Name, err)
				os.Exit(1)
			}
		}

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		if checkCmd.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "Usage: %s check [-platform name] [-series] <slug>\n", os.Args[0])
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		slug := checkCmd.Arg(0)
		p, _, err := resolvePlatform(cfg, *checkPlatform)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		st, err := openStore(cfg, p, *checkDB)
		if err != nil {
			log.Printf("Open database failed: %v", err)
			os.Exit(1)
		}
		defer st.Close()

		api, err := newClient(cfg, p)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		s := scraper.New(api, st, scraper.Options{Delay: cfg.Delay})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if *checkSeries {
			err = s.CheckSeries(ctx, slug)
		} else {
			err = s.CheckMedia(ctx, slug)
		}
		if err != nil {
			log.Printf("Check failed: %v", err)
			os.Exit(1)
		}
		printVerdict(st, slug)

	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		platforms, targets, err := selectPlatforms(cfg, *exportPlatform)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		outDir := cfg.OutputDir
		if *exportOutput != "" {
			outDir = *exportOutput
		}
		for _, p := range targets {
			dir := outDir
			if len(targets) > 1 {
				dir = filepath.Join(outDir, p.Name)
			}
			if err := exportPlatformDB(cfg, p, platforms, *exportDB, dir); err != nil {
				log.Printf("Export %s failed: %v", p.Name, err)
				os.Exit(1)
			}
			log.Printf("Exported %s to %s", p.Name, dir)
		}

	case "stats":
		_ = statsCmd.Parse(os.Args[2:])
		p, _, err := resolvePlatform(cfg, *statsPlatform)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
		st, err := openStore(cfg, p, *statsDB)
		if err != nil {
			log.Printf("Open database failed: %v", err)
			os.Exit(1)
		}
		defer st.Close()
		printStats(st, p.Name)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

// crawlPlatform runs one full crawl against one platform database, then
// exports unless -no-export. Context cancellation and auth failures abort;
// per-item errors are already absorbed by the scraper.
func crawlPlatform(ctx context.Context, cfg *config.Config, p platform.Platform, platforms []platform.Platform, collector *metrics.Collector, flags scrapeFlags) error {
	st, err := openStore(cfg, p, flags.dbOverride)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	api, err := newClient(cfg, p)
	if err != nil {
		return err
	}
	s := scraper.New(api, st, scraper.Options{
		Delay:        flags.delay,
		Limit:        flags.limit,
		MetadataOnly: flags.metadataOnly,
		Metrics:      collector,
	})

	log.Printf("Crawling %s", p.Name)
	var stats scraper.RunStats
	switch {
	case flags.restrictedOnly:
		stats, err = s.Recheck(ctx, store.Filter{GeoRestrictedOnly: true, Platform: p.Name})
	case flags.missingMeta:
		stats, err = s.Recheck(ctx, store.Filter{MissingMetadata: true, Platform: p.Name})
	default:
		stats, err = s.Run(ctx, flags.media, flags.series)
	}
	if err != nil {
		return err
	}
	if flags.channels {
		if err := s.CheckChannels(ctx); err != nil {
			return err
		}
		stats = s.Stats()
	}
	log.Printf("Crawl %s done: %d discovered, %d checked (%d restricted, %d accessible, %d unknown), %d errors",
		p.Name, stats.Discovered, stats.Checked, stats.Restricted, stats.Accessible, stats.Unknown, stats.Errors)

	if flags.noExport {
		return nil
	}
	outDir := flags.outputDir
	if flags.multi {
		outDir = filepath.Join(outDir, p.Name)
	}
	if err := export.New(st, platforms, outDir).Run(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	log.Printf("Exported JSON to %s", outDir)
	return nil
}

func exportPlatformDB(cfg *config.Config, p platform.Platform, platforms []platform.Platform, dbOverride, outDir string) error {
	st, err := openStore(cfg, p, dbOverride)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return export.New(st, platforms, outDir).Run()
}

func loadPlatforms(cfg *config.Config) ([]platform.Platform, error) {
	if cfg.PlatformsFile == "" {
		return platform.Defaults(), nil
	}
	loaded, err := platform.LoadFile(cfg.PlatformsFile)
	if err != nil {
		return nil, fmt.Errorf("load platforms file: %w", err)
	}
	return loaded, nil
}

// selectPlatforms resolves -platform into the crawl targets: one platform by
// name, or every defined platform for "all".
func selectPlatforms(cfg *config.Config, name string) (all, targets []platform.Platform, err error) {
	platforms, err := loadPlatforms(cfg)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(name, "all") {
		return platforms, platforms, nil
	}
	p, ok := platform.ByName(platforms, name)
	if !ok {
		return nil, nil, errors.New(unknownPlatformMsg(platforms, name))
	}
	return platforms, []platform.Platform{p}, nil
}

func resolvePlatform(cfg *config.Config, name string) (platform.Platform, []platform.Platform, error) {
	platforms, err := loadPlatforms(cfg)
	if err != nil {
		return platform.Platform{}, nil, err
	}
	p, ok := platform.ByName(platforms, name)
	if !ok {
		return platform.Platform{}, nil, errors.New(unknownPlatformMsg(platforms, name))
	}
	return p, platforms, nil
}

func unknownPlatformMsg(platforms []platform.Platform, name string) string {
	known := make([]string, 0, len(platforms))
	for _, q := range platforms {
		known = append(known, q.Name)
	}
	return fmt.Sprintf("unknown platform %q (have %s)", name, strings.Join(known, ", "))
}

func openStore(cfg *config.Config, p platform.Platform, override string) (*store.Store, error) {
	path := cfg.DBPath(p.Name)
	if override != "" {
		path = override
	}
	return store.Open(path)
}

func newClient(cfg *config.Config, p platform.Platform) (*client.Client, error) {
	return client.New(p, cfg.Username, cfg.Password,
		client.WithLanguage(cfg.Language),
		client.WithTimeouts(cfg.ProbeTimeout, cfg.SegmentTimeout))
}

func splitSlugs(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printVerdict(st *store.Store, slug string) {
	rec, err := st.BySlug(slug)
	if err != nil {
		log.Printf("Load record failed: %v", err)
		os.Exit(1)
	}
	verdict := "unknown"
	switch {
	case rec.GeoRestricted != nil && *rec.GeoRestricted:
		verdict = "geo-restricted (" + rec.RestrictionType + ")"
	case rec.GeoRestricted != nil:
		verdict = "accessible"
	}
	fmt.Printf("%s (%s): %s\n", rec.Title, rec.Type, verdict)
	if !rec.LastChecked.IsZero() {
		fmt.Printf("  last checked %s\n", rec.LastChecked.Format("2006-01-02 15:04:05 MST"))
	}
}

func printStats(st *store.Store, platformName string) {
	stats, err := st.Statistics()
	if err != nil {
		log.Printf("Read statistics failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Database for %s:\n", platformName)
	fmt.Printf("  total content:    %d\n", stats.Total)
	fmt.Printf("  geo-restricted:   %d (%.1f%%)\n", stats.Restricted, stats.RestrictedPercentage)
	fmt.Printf("  accessible:       %d\n", stats.Accessible)
	fmt.Printf("  unknown:          %d\n", stats.Unknown)
	for _, name := range sortedKeys(stats.ByType) {
		fmt.Printf("  type %-12s %d\n", name+":", stats.ByType[name])
	}
	for _, name := range sortedKeys(stats.ByPlatform) {
		fmt.Printf("  platform %-16s %d\n", name+":", stats.ByPlatform[name])
	}
	if !stats.LastCheck.IsZero() {
		fmt.Printf("  last check:       %s\n", stats.LastCheck.Format("2006-01-02 15:04:05 MST"))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
