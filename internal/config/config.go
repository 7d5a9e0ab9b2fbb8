package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultStorageProvider   = "local"
	DefaultDataRoot          = "data"
	DefaultStagingPrefix     = "staged"
	DefaultFileExtension     = ".pdf"
	DefaultUnderstandingURL  = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultSummaryModel      = "qwen-long"
	DefaultUnderstandingWait = 120
)

type Config struct {
	Log           LogConfig           `toml:"log"`
	Server        ServerConfig        `toml:"server"`
	Lark          LarkConfig          `toml:"lark"`
	Storage       StorageConfig       `toml:"storage"`
	Understanding UnderstandingConfig `toml:"understanding"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LarkConfig struct {
	AppID             string `toml:"app_id"`
	AppSecret         string `toml:"app_secret"`
	VerificationToken string `toml:"verification_token"`
	Region            string `toml:"region"`
}

type StorageConfig struct {
	Provider string `toml:"provider"`
	DataRoot string `toml:"data_root"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
}

type UnderstandingConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PipelineConfig struct {
	TriggerPhrases []string `toml:"trigger_phrases"`
	FileExtension  string   `toml:"file_extension"`
}

func (c UnderstandingConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultUnderstandingWait
	}
	return time.Duration(seconds) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Lark: LarkConfig{
			Region: "feishu",
		},
		Storage: StorageConfig{
			Provider: DefaultStorageProvider,
			DataRoot: DefaultDataRoot,
			Prefix:   DefaultStagingPrefix,
		},
		Understanding: UnderstandingConfig{
			BaseURL:        DefaultUnderstandingURL,
			Model:          DefaultSummaryModel,
			TimeoutSeconds: DefaultUnderstandingWait,
		},
		Pipeline: PipelineConfig{
			TriggerPhrases: []string{"start analysis", "开始分析"},
			FileExtension:  DefaultFileExtension,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
