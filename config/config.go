package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Land       LandConfig
	Kakao      KakaoConfig
	PublicData PublicDataConfig
	Images     ImageConfig
	Scheduler  SchedulerConfig
	Scraper    ScraperConfig
	Proxy      ProxyConfig
	Redis      RedisConfig
	S3         S3Config
	DBPath     string
	DBURL      string
	LogLevel   string
	LogPath    string
	Site       *SiteConfig
}

type LandConfig struct {
	RequestDelay time.Duration
	RateLimit    time.Duration
	Timeout      time.Duration
	PageSize     int
	Zoom         int
	DeltaLat     float64
	DeltaLon     float64
}

type KakaoConfig struct {
	APIKey    string
	RateLimit time.Duration
	Timeout   time.Duration
	RadiusM   int
}

type PublicDataConfig struct {
	ServiceKey string
	RateLimit  time.Duration
}

type ImageConfig struct {
	Resolve         bool
	CacheTTL        time.Duration
	BrowserFallback bool
}

type SchedulerConfig struct {
	Interval  time.Duration
	Cron      string
	ScoreCron string
}

type ScraperConfig struct {
	Limit        int
	ScoreWorkers int
}

type ProxyConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether enough is configured to upload.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// SiteConfig is the YAML site file: endpoint overrides and the known-region lookup table.
type SiteConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	RateLimitMS int               `yaml:"rate_limit_ms"`
	Endpoints   map[string]string `yaml:"endpoints"`
	Regions     map[string]Region `yaml:"regions"`
}

// Region is a known region code with its map center. Watch marks regions the
// scheduler acquires on every run.
type Region struct {
	Code  string  `yaml:"code"`
	Label string  `yaml:"label"`
	Lat   float64 `yaml:"lat"`
	Lon   float64 `yaml:"lon"`
	Limit int     `yaml:"limit"`
	Watch bool    `yaml:"watch"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Land: LandConfig{
			RequestDelay: getEnvMillis("LAND_REQUEST_DELAY_MS", 800),
			RateLimit:    getEnvMillis("LAND_RATE_LIMIT_MS", 500),
			Timeout:      time.Duration(getEnvInt("LAND_TIMEOUT_SEC", 15)) * time.Second,
			PageSize:     getEnvInt("LAND_PAGE_SIZE", 20),
			Zoom:         getEnvInt("LAND_ZOOM", 12),
			DeltaLat:     getEnvFloat("LAND_BBOX_DELTA_LAT", 0.09),
			DeltaLon:     getEnvFloat("LAND_BBOX_DELTA_LON", 0.18),
		},
		Kakao: KakaoConfig{
			APIKey:    os.Getenv("KAKAO_REST_API_KEY"),
			RateLimit: getEnvMillis("KAKAO_RATE_LIMIT_MS", 200),
			Timeout:   time.Duration(getEnvInt("KAKAO_TIMEOUT_SEC", 5)) * time.Second,
			RadiusM:   getEnvInt("KAKAO_RADIUS_M", 2000),
		},
		PublicData: PublicDataConfig{
			ServiceKey: os.Getenv("SERVICE_KEY"),
			RateLimit:  getEnvMillis("PUBLICDATA_RATE_LIMIT_MS", 100),
		},
		Images: ImageConfig{
			Resolve:         getEnvBool("IMAGE_RESOLVE", false),
			CacheTTL:        getEnvDuration("IMAGE_CACHE_TTL", time.Hour),
			BrowserFallback: getEnvBool("IMAGE_BROWSER_FALLBACK", false),
		},
		Scheduler: SchedulerConfig{
			Cron:      os.Getenv("SCRAPE_CRON"),
			ScoreCron: os.Getenv("SCORE_CRON"),
			Interval:  getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		Scraper: ScraperConfig{
			Limit:        getEnvInt("SCRAPE_LIMIT", 50),
			ScoreWorkers: getEnvInt("SCORE_WORKERS", 5),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:   getEnv("DB_PATH", "landscout.db"),
		DBURL:    os.Getenv("DATABASE_URL"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", "landscout.log"),
	}

	site, err := LoadSite(getEnv("SITE_CONFIG", "config/site.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Site = site
	if site.RateLimitMS > 0 {
		cfg.Land.RateLimit = time.Duration(site.RateLimitMS) * time.Millisecond
	}

	return cfg, nil
}

// LoadSite reads the site YAML. A missing file yields an empty site.
func LoadSite(path string) (*SiteConfig, error) {
	site := &SiteConfig{
		Endpoints: make(map[string]string),
		Regions:   make(map[string]Region),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return site, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, site); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if site.Endpoints == nil {
		site.Endpoints = make(map[string]string)
	}
	if site.Regions == nil {
		site.Regions = make(map[string]Region)
	}
	for key, r := range site.Regions {
		if r.Code == "" {
			r.Code = key
			site.Regions[key] = r
		}
	}

	return site, nil
}

// Lookup finds a known region by code or label (case-insensitive, trimmed).
func (s *SiteConfig) Lookup(keyword string) (Region, bool) {
	if s == nil {
		return Region{}, false
	}
	keyword = strings.TrimSpace(keyword)
	if r, ok := s.Regions[keyword]; ok {
		return r, true
	}
	for _, r := range s.Regions {
		if r.Code == keyword || strings.EqualFold(r.Label, keyword) {
			return r, true
		}
	}
	return Region{}, false
}

// Watched returns the regions flagged for scheduled acquisition.
func (s *SiteConfig) Watched() []Region {
	if s == nil {
		return nil
	}
	var out []Region
	for _, r := range s.Regions {
		if r.Watch {
			out = append(out, r)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMS)) * time.Millisecond
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
