package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagLogJSON   = flag.Bool("log-json", false, "Write logs as JSON")
	flagLogFile   = flag.String("log-file", "", "Also write logs to a rotating file")
	flagOcclusion = flag.String("occlusion", "", "Occlusion method: none, query or hzb")
	flagCascades  = flag.Int("cascades", -1, "Number of directional shadow cascades")
	flagShadowRes = flag.Int("shadow-res", 0, "Maximum shadow resolution")
	flagNoFade    = flag.Bool("no-fade", false, "Disable distance fading")
	flagWorkers   = flag.Int("workers", 0, "Parallel culling workers")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogJSON {
		cfg.Logging.Format = "json"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagOcclusion != "" {
		cfg.Occlusion.Method = OcclusionMethod(*flagOcclusion)
	}
	if *flagCascades >= 0 {
		cfg.Shadows.NumCascades = *flagCascades
	}
	if *flagShadowRes > 0 {
		cfg.Shadows.MaxResolution = *flagShadowRes
	}
	if *flagNoFade {
		cfg.Visibility.FadeEnabled = false
	}
	if *flagWorkers > 0 {
		cfg.Visibility.Workers = *flagWorkers
	}
}
