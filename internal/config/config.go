package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"log"
	"os"
	"sync"
	"time"
)

type Config struct {
	IsDebug bool `yaml:"is_debug" env:"IS_DEBUG" env-default:"false"`
	Station struct {
		Id              string `yaml:"id" env-default:"CP001"`
		Model           string `yaml:"model" env-default:"FastCharge Pro X2"`
		Vendor          string `yaml:"vendor" env-default:"ElectroTech"`
		SerialNumber    string `yaml:"serial_number" env-default:"FC-2024-001"`
		FirmwareVersion string `yaml:"firmware_version" env-default:"2.1.4"`
		Connectors      int    `yaml:"connectors" env-default:"2"`
		MaxPower        int    `yaml:"max_power" env-default:"22000"`
		DefaultPower    int    `yaml:"default_power" env-default:"11000"`
	} `yaml:"station"`
	Connection struct {
		Transport       string        `yaml:"transport" env:"TRANSPORT" env-default:"simulator"`
		Address         string        `yaml:"address" env:"CENTRAL_SYSTEM_URL" env-default:"wss://central-station.example.com/ocpp/CP001"`
		AutoConnect     bool          `yaml:"auto_connect" env-default:"true"`
		ResponseTimeout time.Duration `yaml:"response_timeout" env-default:"10s"`
	} `yaml:"connection"`
	Intervals struct {
		Heartbeat    time.Duration `yaml:"heartbeat" env-default:"30s"`
		MeterReport  time.Duration `yaml:"meter_report" env-default:"20s"`
		MeterAccrual time.Duration `yaml:"meter_accrual" env-default:"2s"`
		FirmwareTick time.Duration `yaml:"firmware_tick" env-default:"500ms"`
	} `yaml:"intervals"`
	Simulator struct {
		LatencyMin time.Duration `yaml:"latency_min" env-default:"500ms"`
		LatencyMax time.Duration `yaml:"latency_max" env-default:"1500ms"`
		Seed       int64         `yaml:"seed" env-default:"0"`
	} `yaml:"simulator"`
	Api struct {
		Enabled bool   `yaml:"enabled" env-default:"true"`
		BindIP  string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port    string `yaml:"port" env-default:"5100"`
	} `yaml:"api"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"5200"`
	} `yaml:"metrics"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"localhost"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:""`
		Password string `yaml:"password" env-default:""`
		Database string `yaml:"database" env-default:"chargepoint"`
	} `yaml:"mongo"`
	Nats struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		Url     string `yaml:"url" env-default:"nats://localhost:4222"`
		Subject string `yaml:"subject" env-default:"chargepoint.events"`
	} `yaml:"nats"`
	Telegram struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		ApiKey  string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		ChatId  int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID" env-default:"0"`
	} `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func GetConfig() (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config")
		instance = &Config{}
		if err = cleanenv.ReadConfig("config.yml", instance); err != nil {
			if os.IsNotExist(err) {
				// no config file: environment plus defaults
				if err = cleanenv.ReadEnv(instance); err != nil {
					instance = nil
				}
				return
			}
			desc, _ := cleanenv.GetDescription(instance, nil)
			log.Println(desc)
			log.Println(err)
			instance = nil
		}
	})
	return instance, err
}

// NewConfig returns a config filled with defaults only, without touching the
// filesystem. Used by tests and by setups that configure in code.
func NewConfig() (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, err
	}
	return conf, nil
}
