package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/geom"
	"github.com/sanchez-kim/obj-viewer/internal/landmark"
	"github.com/sanchez-kim/obj-viewer/internal/transport"
	"github.com/sanchez-kim/obj-viewer/internal/verify"
	"github.com/sanchez-kim/obj-viewer/internal/walker"
)

// EnvPrefix prefixes every environment override, e.g. LIPCHECK_TRANSPORT_KIND.
const EnvPrefix = "LIPCHECK"

// Config holds every setting of a lipcheck run.
type Config struct {
	Transport transport.Config `mapstructure:"transport"`
	// Models maps a model number to its [start, end] sentence range.
	// Empty means the built-in partition table.
	Models  map[string][]int `mapstructure:"models"`
	Frames  FrameRange       `mapstructure:"frames"`
	Verify  Verify           `mapstructure:"verify"`
	Walk    Walk             `mapstructure:"walk"`
	LogFile string           `mapstructure:"log_file"`
	DB      string           `mapstructure:"db"`
}

// FrameRange is the inclusive frame interval walked per sentence.
type FrameRange struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// Verify configures the geometric check.
type Verify struct {
	OutlineIndices   []int        `mapstructure:"outline_indices"`
	OutlineIndexFile string       `mapstructure:"outline_index_file"`
	LipSource        string       `mapstructure:"lip_source"`
	LipIndexFile     string       `mapstructure:"lip_index_file"`
	Tier1            geom.Padding `mapstructure:"tier1"`
	Tier2            geom.Padding `mapstructure:"tier2"`
	Normalize        bool         `mapstructure:"normalize"`
	ReferenceSize    float64      `mapstructure:"reference_size"`
	Recenter         bool         `mapstructure:"recenter"`
	MinLandmarks     int          `mapstructure:"min_landmarks"`
	PassPolicy       string       `mapstructure:"pass_policy"`
}

// Walk configures the dataset walk.
type Walk struct {
	ResumeFrom             string        `mapstructure:"resume_from"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	FetchTimeout           time.Duration `mapstructure:"fetch_timeout"`
	List                   bool          `mapstructure:"list"`
	Sample                 int           `mapstructure:"sample"`
}

// Flags holds CLI flag values that override config file settings.
// Nil pointers and empty strings leave the loaded value alone.
type Flags struct {
	Transport              string
	Models                 []int
	ResumeFrom             string
	MaxConsecutiveFailures *int
	FetchTimeout           *time.Duration
	List                   *bool
	Sample                 *int
	LogFile                string
	DB                     string
}

func setDefaults(v *viper.Viper) {
	d := verify.DefaultOptions()

	v.SetDefault("transport.kind", transport.KindHTTP)
	v.SetDefault("transport.layout", address.LayoutFlat)
	v.SetDefault("transport.mesh_path", "")
	v.SetDefault("transport.meta_path", "")
	v.SetDefault("transport.base_url", transport.DefaultBaseURL)
	v.SetDefault("transport.root", "")
	v.SetDefault("transport.s3.bucket", "")
	v.SetDefault("transport.s3.region", "ap-northeast-2")
	v.SetDefault("transport.s3.endpoint", "")
	v.SetDefault("transport.sftp.host", "")
	v.SetDefault("transport.sftp.port", 22)
	v.SetDefault("transport.sftp.user", "")
	v.SetDefault("transport.sftp.key_file", "")
	v.SetDefault("transport.sftp.known_hosts", "")
	v.SetDefault("transport.sftp.insecure_ignore_host_key", false)
	v.SetDefault("transport.sftp.timeout", 30*time.Second)

	v.SetDefault("frames.start", 0)
	v.SetDefault("frames.end", 300)

	v.SetDefault("verify.outline_index_file", "")
	v.SetDefault("verify.lip_source", string(d.LipSource))
	v.SetDefault("verify.lip_index_file", "")
	v.SetDefault("verify.tier1.x", d.Tier1.X)
	v.SetDefault("verify.tier1.y", d.Tier1.Y)
	v.SetDefault("verify.tier1.z", d.Tier1.Z)
	v.SetDefault("verify.tier2.x", d.Tier2.X)
	v.SetDefault("verify.tier2.y", d.Tier2.Y)
	v.SetDefault("verify.tier2.z", d.Tier2.Z)
	v.SetDefault("verify.normalize", d.Normalize)
	v.SetDefault("verify.reference_size", d.ReferenceSize)
	v.SetDefault("verify.recenter", d.Recenter)
	v.SetDefault("verify.min_landmarks", d.MinLandmarks)
	v.SetDefault("verify.pass_policy", string(d.Policy))

	v.SetDefault("walk.resume_from", "")
	v.SetDefault("walk.max_consecutive_failures", walker.DefaultMaxConsecutiveFailures)
	v.SetDefault("walk.fetch_timeout", 30*time.Second)
	v.SetDefault("walk.list", false)
	v.SetDefault("walk.sample", 0)

	v.SetDefault("log_file", "log.txt")
	v.SetDefault("db", "")
}

// Load reads .env, then the config file, then LIPCHECK_* variables, over
// the defaults. An empty path looks for lipcheck.{yaml,json,toml} in the
// working directory and is not an error when none exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lipcheck")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

func describe(path string) string {
	if path == "" {
		return "lipcheck config"
	}
	return path
}

// Resolve applies CLI flags over the loaded values.
func (c *Config) Resolve(flags Flags) error {
	if flags.Transport != "" {
		c.Transport.Kind = flags.Transport
	}
	if len(flags.Models) > 0 {
		parts, err := c.Partitions()
		if err != nil {
			return err
		}
		if parts, err = parts.Only(flags.Models...); err != nil {
			return err
		}
		c.Models = make(map[string][]int, len(parts))
		for m, r := range parts {
			c.Models[fmt.Sprint(m)] = []int{r.Start, r.End}
		}
	}
	if flags.ResumeFrom != "" {
		c.Walk.ResumeFrom = flags.ResumeFrom
	}
	if flags.MaxConsecutiveFailures != nil {
		c.Walk.MaxConsecutiveFailures = *flags.MaxConsecutiveFailures
	}
	if flags.FetchTimeout != nil {
		c.Walk.FetchTimeout = *flags.FetchTimeout
	}
	if flags.List != nil {
		c.Walk.List = *flags.List
	}
	if flags.Sample != nil {
		c.Walk.Sample = *flags.Sample
	}
	if flags.LogFile != "" {
		c.LogFile = flags.LogFile
	}
	if flags.DB != "" {
		c.DB = flags.DB
	}
	return nil
}

// Partitions returns the configured partition table, or the built-in one.
func (c *Config) Partitions() (address.Partitions, error) {
	if len(c.Models) == 0 {
		return address.DefaultPartitions(), nil
	}
	return address.ParsePartitions(c.Models)
}

// FrameRange returns the frame interval as an address range.
func (c *Config) FrameRange() address.Range {
	return address.Range{Start: c.Frames.Start, End: c.Frames.End}
}

// VerifyOptions converts the verify section.
func (c *Config) VerifyOptions() verify.Options {
	return verify.Options{
		Tier1:         c.Verify.Tier1,
		Tier2:         c.Verify.Tier2,
		Normalize:     c.Verify.Normalize,
		ReferenceSize: c.Verify.ReferenceSize,
		Recenter:      c.Verify.Recenter,
		MinLandmarks:  c.Verify.MinLandmarks,
		Policy:        verify.PassPolicy(c.Verify.PassPolicy),
		LipSource:     verify.LipSource(c.Verify.LipSource),
	}
}

// Outline returns the outline vertex indices: the index file when set,
// then the inline list, then the canonical outline.
func (c *Config) Outline() ([]int, error) {
	if c.Verify.OutlineIndexFile != "" {
		return landmark.LoadIndices(c.Verify.OutlineIndexFile)
	}
	if len(c.Verify.OutlineIndices) > 0 {
		return c.Verify.OutlineIndices, nil
	}
	return verify.DefaultOutline, nil
}

// LipIndices returns the lip index list for index mode, or nil.
func (c *Config) LipIndices() ([]int, error) {
	if c.Verify.LipIndexFile == "" {
		return nil, nil
	}
	return landmark.LoadIndices(c.Verify.LipIndexFile)
}

// DatabaseURL returns the configured connection string, or one built from
// POSTGRES_* variables. Empty means results are not stored.
func (c *Config) DatabaseURL() string {
	if c.DB != "" {
		return c.DB
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD"), host, port, os.Getenv("POSTGRES_DB"))
}

// WalkOptions converts the walk section. Recorder and Progress are left
// for the caller.
func (c *Config) WalkOptions() (walker.Options, error) {
	parts, err := c.Partitions()
	if err != nil {
		return walker.Options{}, err
	}
	return walker.Options{
		Partitions:             parts,
		Frames:                 c.FrameRange(),
		MaxConsecutiveFailures: c.Walk.MaxConsecutiveFailures,
		FetchTimeout:           c.Walk.FetchTimeout,
		ResumeFrom:             c.Walk.ResumeFrom,
		List:                   c.Walk.List,
		Sample:                 c.Walk.Sample,
	}, nil
}
