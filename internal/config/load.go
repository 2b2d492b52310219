package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/solana"
)

// EnvPrefix prefixes environment overrides, e.g. TRADER_SIZING_MAX_CAPITAL_PER_TRADE.
const EnvPrefix = "TRADER"

// Load reads the config file at path (YAML, TOML or JSON by extension) over
// Defaults and applies environment overrides. An empty path uses defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper knows about.
	setDefaults(v, "", Defaults())
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			modeHook,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// modeHook accepts the execution mode in any case.
func modeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(domain.Mode("")) || from.Kind() != reflect.String {
		return data, nil
	}
	return domain.Mode(strings.ToUpper(strings.TrimSpace(reflect.ValueOf(data).String()))), nil
}

// setDefaults registers every leaf of the defaults struct with viper so that
// environment overrides and partial files both resolve.
func setDefaults(v *viper.Viper, prefix string, cfg Config) {
	var m map[string]interface{}
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return
	}
	walkDefaults(v, prefix, m)
}

func walkDefaults(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]interface{}); ok {
			walkDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

func validateWallet(addr string) error {
	return solana.ValidateWalletAddress(addr)
}
