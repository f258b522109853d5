package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved daemon configuration. Defaults are overridden by the
// first readable yaml file, which is in turn overridden by WARRAND_* env vars.
type Config struct {
	Gateway  GatewayConfig
	Ledger   LedgerConfig
	Prover   ProverConfig
	Sponsor  SponsorConfig
	Salts    SaltStoreConfig
	OAuth    OAuthConfig
	Contract ContractConfig
}

type GatewayConfig struct {
	Addr           string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	EpochCacheTTL  time.Duration
}

type LedgerConfig struct {
	RPCURL     string
	Network    string
	UseFixture bool
}

type ProverConfig struct {
	URL      string
	Timeout  time.Duration
	Attempts int
}

type SponsorConfig struct {
	Mnemonic  string // env-only, never written to yaml
	GasBudget uint64
	GasPrice  uint64
}

type SaltStoreConfig struct {
	Path   string
	Secret string // env-only
}

type OAuthConfig struct {
	Issuer      string
	Audience    string
	JWKSURL     string
	RedirectURL string
	// SkipVerification disables signature checks; only honored when the
	// fixture ledger is selected.
	SkipVerification bool
}

type ContractConfig struct {
	PackageID string
}

type fileConfig struct {
	Gateway struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimitRPS   float64  `yaml:"rateLimitRps"`
		RateLimitBurst int      `yaml:"rateLimitBurst"`
		EpochCacheTTL  string   `yaml:"epochCacheTtl"`
	} `yaml:"gateway"`
	Ledger struct {
		RPCURL     string `yaml:"rpcUrl"`
		Network    string `yaml:"network"`
		UseFixture *bool  `yaml:"useFixture"`
	} `yaml:"ledger"`
	Prover struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Attempts int    `yaml:"attempts"`
	} `yaml:"prover"`
	Sponsor struct {
		GasBudget uint64 `yaml:"gasBudget"`
		GasPrice  uint64 `yaml:"gasPrice"`
	} `yaml:"sponsor"`
	Salts struct {
		Path string `yaml:"path"`
	} `yaml:"salts"`
	OAuth struct {
		Issuer      string `yaml:"issuer"`
		Audience    string `yaml:"audience"`
		JWKSURL     string `yaml:"jwksUrl"`
		RedirectURL string `yaml:"redirectUrl"`
	} `yaml:"oauth"`
	Contract struct {
		PackageID string `yaml:"packageId"`
	} `yaml:"contract"`
}

func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			Addr:           "127.0.0.1:3001",
			AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimitRPS:   30,
			RateLimitBurst: 60,
			EpochCacheTTL:  time.Minute,
		},
		Ledger: LedgerConfig{
			RPCURL:  "https://fullnode.testnet.sui.io:443",
			Network: "testnet",
		},
		Prover: ProverConfig{
			URL:      "https://prover.api.mystenlabs.com/v1",
			Timeout:  30 * time.Second,
			Attempts: 3,
		},
		Sponsor: SponsorConfig{
			GasBudget: 10_000_000,
			GasPrice:  1_000,
		},
		Salts: SaltStoreConfig{
			Path: "data/salts.enc",
		},
		OAuth: OAuthConfig{
			Issuer:      "https://accounts.google.com",
			JWKSURL:     "https://www.googleapis.com/oauth2/v3/certs",
			RedirectURL: "http://localhost:3000/auth/callback",
		},
	}
}

// LoadFromPath loads configuration from configPath, or from the default
// candidate locations when configPath is empty.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"configs/warrand.yaml", "warrand.yaml"}
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src fileConfig) {
	if src.Gateway.Addr != "" {
		dst.Gateway.Addr = src.Gateway.Addr
	}
	if src.Gateway.AllowedOrigins != nil {
		dst.Gateway.AllowedOrigins = src.Gateway.AllowedOrigins
	}
	if src.Gateway.RateLimitRPS > 0 {
		dst.Gateway.RateLimitRPS = src.Gateway.RateLimitRPS
	}
	if src.Gateway.RateLimitBurst > 0 {
		dst.Gateway.RateLimitBurst = src.Gateway.RateLimitBurst
	}
	if d, err := time.ParseDuration(src.Gateway.EpochCacheTTL); err == nil && d > 0 {
		dst.Gateway.EpochCacheTTL = d
	}
	if src.Ledger.RPCURL != "" {
		dst.Ledger.RPCURL = src.Ledger.RPCURL
	}
	if src.Ledger.Network != "" {
		dst.Ledger.Network = src.Ledger.Network
	}
	if src.Ledger.UseFixture != nil {
		dst.Ledger.UseFixture = *src.Ledger.UseFixture
	}
	if src.Prover.URL != "" {
		dst.Prover.URL = src.Prover.URL
	}
	if d, err := time.ParseDuration(src.Prover.Timeout); err == nil && d > 0 {
		dst.Prover.Timeout = d
	}
	if src.Prover.Attempts > 0 {
		dst.Prover.Attempts = src.Prover.Attempts
	}
	if src.Sponsor.GasBudget > 0 {
		dst.Sponsor.GasBudget = src.Sponsor.GasBudget
	}
	if src.Sponsor.GasPrice > 0 {
		dst.Sponsor.GasPrice = src.Sponsor.GasPrice
	}
	if src.Salts.Path != "" {
		dst.Salts.Path = src.Salts.Path
	}
	if src.OAuth.Issuer != "" {
		dst.OAuth.Issuer = src.OAuth.Issuer
	}
	if src.OAuth.Audience != "" {
		dst.OAuth.Audience = src.OAuth.Audience
	}
	if src.OAuth.JWKSURL != "" {
		dst.OAuth.JWKSURL = src.OAuth.JWKSURL
	}
	if src.OAuth.RedirectURL != "" {
		dst.OAuth.RedirectURL = src.OAuth.RedirectURL
	}
	if src.Contract.PackageID != "" {
		dst.Contract.PackageID = src.Contract.PackageID
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WARRAND_GATEWAY_ADDR")); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_ALLOWED_ORIGINS")); v != "" {
		cfg.Gateway.AllowedOrigins = splitList(v)
	}
	if v, ok := parseFloatEnv("WARRAND_RATE_LIMIT_RPS"); ok {
		cfg.Gateway.RateLimitRPS = v
	}
	if v, ok := parseIntEnv("WARRAND_RATE_LIMIT_BURST"); ok {
		cfg.Gateway.RateLimitBurst = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_LEDGER_RPC_URL")); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_LEDGER_NETWORK")); v != "" {
		cfg.Ledger.Network = v
	}
	if v, ok := parseBoolEnv("WARRAND_LEDGER_FIXTURE"); ok {
		cfg.Ledger.UseFixture = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_PROVER_URL")); v != "" {
		cfg.Prover.URL = v
	}
	if v, ok := parseIntEnv("WARRAND_PROVER_ATTEMPTS"); ok {
		cfg.Prover.Attempts = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_SPONSOR_MNEMONIC")); v != "" {
		cfg.Sponsor.Mnemonic = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_SALT_STORE_PATH")); v != "" {
		cfg.Salts.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_SALT_STORE_SECRET")); v != "" {
		cfg.Salts.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_OAUTH_AUDIENCE")); v != "" {
		cfg.OAuth.Audience = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_OAUTH_ISSUER")); v != "" {
		cfg.OAuth.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_OAUTH_JWKS_URL")); v != "" {
		cfg.OAuth.JWKSURL = v
	}
	if v, ok := parseBoolEnv("WARRAND_OAUTH_SKIP_VERIFY"); ok {
		cfg.OAuth.SkipVerification = v
	}
	if v := strings.TrimSpace(os.Getenv("WARRAND_PACKAGE_ID")); v != "" {
		cfg.Contract.PackageID = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBoolEnv(name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func parseIntEnv(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseFloatEnv(name string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
