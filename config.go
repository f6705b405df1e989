/*
Package record – configuration.

Config is loaded with viper from an optional file plus RECORD_* environment
variables and validated with validator before use.
*/
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the client and execution settings.
type Config struct {
	// AWS
	Region          string `mapstructure:"region" validate:"required"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`

	// Execution
	Table        string        `mapstructure:"table"`
	Schema       string        `mapstructure:"schema"` // schema file path
	Concurrency  int           `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	BatchRetries int           `mapstructure:"batch_retries" validate:"gte=-1"`
	RetryBase    time.Duration `mapstructure:"retry_base" validate:"gte=0"`

	// Logging
	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error disabled"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "us-east-1")
	v.SetDefault("endpoint", "")
	v.SetDefault("profile", "")
	v.SetDefault("access_key_id", "")
	v.SetDefault("secret_access_key", "")

	v.SetDefault("table", "")
	v.SetDefault("schema", "")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("batch_retries", DefaultBatchRetries)
	v.SetDefault("retry_base", DefaultRetryBase)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// LoadConfig reads path (if not empty) and overlays RECORD_* environment
// variables, e.g. RECORD_REGION or RECORD_LOG_LEVEL.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("record")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("field %q failed on %q", e.Field(), e.Tag()))
			}
			return NewError("invalid config: "+strings.Join(msgs, "; "), WithCode(CodeArgument), WithCause(err))
		}
		return NewError("invalid config", WithCode(CodeArgument), WithCause(err))
	}
	return nil
}

// Logger builds the logger described by cfg.
func (cfg *Config) Logger() Logger {
	return NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
}

// Retry returns the batch retry policy described by cfg.
func (cfg *Config) Retry() RetryPolicy {
	attempts := cfg.BatchRetries
	if attempts == 0 {
		// zero in a config file means "no retries", not "default"
		attempts = -1
	}
	return RetryPolicy{Attempts: attempts, Base: cfg.RetryBase}
}

// NewDynamoClient builds a DynamoDB client from cfg. Static credentials and a
// custom endpoint are used when set, e.g. for DynamoDB Local.
func NewDynamoClient(ctx context.Context, cfg *Config) (*ddb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ddb.NewFromConfig(awsCfg, func(o *ddb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// LoadSchemaFile reads a SchemaDef from a JSON, YAML or TOML file.
func LoadSchemaFile(path string) (*SchemaDef, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	var def SchemaDef
	if err := v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema %s: %w", path, err)
	}
	return &def, nil
}

// OpenTable loads the schema named by cfg and binds it to client.
func OpenTable(cfg *Config, client DynamoClient) (*Table, error) {
	if cfg.Schema == "" {
		return nil, NewArgError(`missing "schema" in config`)
	}
	def, err := LoadSchemaFile(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if cfg.Table != "" {
		def.Table = cfg.Table
	}
	schema, err := NewSchema(*def)
	if err != nil {
		return nil, err
	}
	return NewTable(TableParams{
		Client:      client,
		Schema:      schema,
		Logger:      cfg.Logger(),
		Concurrency: cfg.Concurrency,
		Retry:       cfg.Retry(),
	})
}
