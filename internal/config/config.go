package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Solar         SolarConfig         `mapstructure:"solar"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type HomeAssistantConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`

	// ReconnectDelay is the pause between WebSocket reconnect attempts.
	ReconnectDelay string `mapstructure:"reconnect_delay"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// SolarConfig carries the per-installation settings for the accounting engine.
type SolarConfig struct {
	// Instance identifies this installation inside the snapshot store so
	// several installations can share one database.
	Instance string `mapstructure:"instance"`

	Entities     EntitiesConfig     `mapstructure:"entities"`
	Prices       PricesConfig       `mapstructure:"prices"`
	Installation InstallationConfig `mapstructure:"installation"`
	Quota        QuotaConfig        `mapstructure:"quota"`
	Battery      BatteryConfig      `mapstructure:"battery"`
	Benchmark    BenchmarkConfig    `mapstructure:"benchmark"`
	Strings      []StringConfig     `mapstructure:"strings"`
	Persistence  PersistenceConfig  `mapstructure:"persistence"`
}

// EntitiesConfig names the cumulative kWh counter entities to monitor.
type EntitiesConfig struct {
	PVProduction string `mapstructure:"pv_production"`
	GridExport   string `mapstructure:"grid_export"`
	GridImport   string `mapstructure:"grid_import"`
	Consumption  string `mapstructure:"consumption"`
}

type PricesConfig struct {
	// ImportPrice is the static net import price, interpreted per ImportPriceUnit.
	ImportPrice       float64 `mapstructure:"import_price"`
	ImportPriceUnit   string  `mapstructure:"import_price_unit"`
	ImportPriceEntity string  `mapstructure:"import_price_entity"`

	FeedInTariff       float64 `mapstructure:"feed_in_tariff"`
	FeedInTariffUnit   string  `mapstructure:"feed_in_tariff_unit"`
	FeedInTariffEntity string  `mapstructure:"feed_in_tariff_entity"`

	// MarkupFactor converts net to gross import price (grid fees + taxes).
	MarkupFactor float64 `mapstructure:"markup_factor"`
}

type InstallationConfig struct {
	Cost float64 `mapstructure:"cost"`
	// Date is the installation date in ISO format (YYYY-MM-DD), optional.
	Date string `mapstructure:"date"`

	// SavingsOffset is savings accumulated before tracking started (EUR).
	SavingsOffset float64 `mapstructure:"savings_offset"`
	// EnergyOffsetSelf / EnergyOffsetExport are kWh produced before tracking.
	EnergyOffsetSelf   float64 `mapstructure:"energy_offset_self"`
	EnergyOffsetExport float64 `mapstructure:"energy_offset_export"`
}

type QuotaConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	YearlyKWh   float64 `mapstructure:"yearly_kwh"`
	StartDate   string  `mapstructure:"start_date"`
	StartMeter  float64 `mapstructure:"start_meter"`
	MonthlyRate float64 `mapstructure:"monthly_rate"`
}

type BatteryConfig struct {
	SOCEntity       string  `mapstructure:"soc_entity"`
	ChargeEntity    string  `mapstructure:"charge_entity"`
	DischargeEntity string  `mapstructure:"discharge_entity"`
	CapacityKWh     float64 `mapstructure:"capacity_kwh"`
}

type BenchmarkConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	HouseholdSize  int    `mapstructure:"household_size"`
	Country        string `mapstructure:"country"`
	HeatPump       bool   `mapstructure:"heat_pump"`
	HeatPumpEntity string `mapstructure:"heat_pump_entity"`
}

// StringConfig describes one monitored PV string.
type StringConfig struct {
	Name         string  `mapstructure:"name"`
	EnergyEntity string  `mapstructure:"energy_entity"`
	PowerEntity  string  `mapstructure:"power_entity"`
	RatedKWp     float64 `mapstructure:"rated_kwp"`
}

type PersistenceConfig struct {
	// SnapshotInterval is the cron-driven periodic snapshot flush.
	SnapshotInterval string `mapstructure:"snapshot_interval"`
	// BootstrapGrace is how long to wait for a restore before seeding the
	// accumulators from the current absolute sensor totals.
	BootstrapGrace string `mapstructure:"bootstrap_grace"`
}

// SnapshotIntervalDuration parses the configured interval with a safe default.
func (p PersistenceConfig) SnapshotIntervalDuration() time.Duration {
	if d, err := time.ParseDuration(p.SnapshotInterval); err == nil && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// BootstrapGraceDuration parses the bootstrap grace delay with a safe default.
func (p PersistenceConfig) BootstrapGraceDuration() time.Duration {
	if d, err := time.ParseDuration(p.BootstrapGrace); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// StructuralKey summarizes the settings that require rebuilding the entity
// subscriptions when changed; everything else can be live-reloaded.
func (s SolarConfig) StructuralKey() string {
	key := fmt.Sprintf("e=%s/%s/%s/%s|p=%s/%s|q=%t|b=%s/%s/%s|bm=%t|hp=%t/%s",
		s.Entities.PVProduction, s.Entities.GridExport, s.Entities.GridImport, s.Entities.Consumption,
		s.Prices.ImportPriceEntity, s.Prices.FeedInTariffEntity,
		s.Quota.Enabled,
		s.Battery.SOCEntity, s.Battery.ChargeEntity, s.Battery.DischargeEntity,
		s.Benchmark.Enabled,
		s.Benchmark.HeatPump, s.Benchmark.HeatPumpEntity,
	)
	for _, str := range s.Strings {
		key += fmt.Sprintf("|s=%s/%s", str.EnergyEntity, str.PowerEntity)
	}
	return key
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("home_assistant.token", "HOME_ASSISTANT_TOKEN")
	viper.BindEnv("home_assistant.url", "HOME_ASSISTANT_URL")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Watch re-unmarshals the config whenever the underlying file changes and
// hands the result to fn. Unparseable edits are dropped, the previous config
// stays in effect.
func Watch(fn func(*Config)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return
		}
		fn(&cfg)
	})
	viper.WatchConfig()
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 3002)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	// Database defaults
	viper.SetDefault("database.path", "./data/solar.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 10)

	// Home Assistant defaults
	viper.SetDefault("home_assistant.url", "http://homeassistant.local:8123")
	viper.SetDefault("home_assistant.reconnect_delay", "5s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// WebSocket defaults
	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	// Solar defaults
	viper.SetDefault("solar.instance", "default")
	viper.SetDefault("solar.prices.import_price", 0.1092)
	viper.SetDefault("solar.prices.import_price_unit", "eur")
	viper.SetDefault("solar.prices.feed_in_tariff", 0.08)
	viper.SetDefault("solar.prices.feed_in_tariff_unit", "eur")
	viper.SetDefault("solar.prices.markup_factor", 2.0)
	viper.SetDefault("solar.installation.cost", 10000.0)
	viper.SetDefault("solar.quota.enabled", false)
	viper.SetDefault("solar.quota.yearly_kwh", 4000.0)
	viper.SetDefault("solar.battery.capacity_kwh", 10.0)
	viper.SetDefault("solar.benchmark.enabled", false)
	viper.SetDefault("solar.benchmark.household_size", 3)
	viper.SetDefault("solar.benchmark.country", "AT")
	viper.SetDefault("solar.persistence.snapshot_interval", "5m")
	viper.SetDefault("solar.persistence.bootstrap_grace", "1m")
}
