package smbc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/internal/config"
	"github.com/ineffectivecoder/smbclient/internal/metrics"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
)

const defaultPort = 445

// Options configure a Context. Changes apply to sessions created after
// the change.
type Options struct {
	NetBIOSName           string
	Workgroup             string
	Debug                 int
	Timeout               time.Duration
	UseKerberos           bool
	FallbackAfterKerberos bool
	NoAutoAnonymousLogin  bool
	DebugToStderr         bool
	DebugFile             string // rotated log file; wins over DebugToStderr
	FullTimeNames         bool
	RequireSigning        bool
	SOCKS5                string // socks5://host:port
	Metrics               *metrics.Metrics
}

// Option mutates Options at construction time.
type Option func(*Options)

func WithNetBIOSName(name string) Option { return func(o *Options) { o.NetBIOSName = name } }
func WithWorkgroup(wg string) Option     { return func(o *Options) { o.Workgroup = wg } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithDebug(level int) Option         { return func(o *Options) { o.Debug = level } }
func WithSOCKS5(proxy string) Option     { return func(o *Options) { o.SOCKS5 = proxy } }

// WithMetrics records wire traffic into m.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Options) { o.Metrics = m } }

// WithKerberos prefers Kerberos; fallback allows NTLM when it fails.
func WithKerberos(fallback bool) Option {
	return func(o *Options) {
		o.UseKerberos = true
		o.FallbackAfterKerberos = fallback
	}
}

// WithNoAutoAnonymousLogin disables the final anonymous attempt.
func WithNoAutoAnonymousLogin() Option { return func(o *Options) { o.NoAutoAnonymousLogin = true } }

var (
	defaultsOnce sync.Once
	defaults     Options
)

// DefaultOptions returns the options derived from smbclient.yaml and the
// SMBC_* environment, loaded once per process.
func DefaultOptions() Options {
	defaultsOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			debug.Warn("config load failed, using built-in defaults", debug.KeyError, err)
			cfg = config.Default()
		}
		defaults = OptionsFromConfig(cfg)
	})
	return defaults
}

// OptionsFromConfig converts loaded configuration into Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		NetBIOSName:           cfg.NetBIOSName,
		Workgroup:             cfg.Workgroup,
		Debug:                 cfg.Debug,
		Timeout:               cfg.Timeout,
		UseKerberos:           cfg.UseKerberos,
		FallbackAfterKerberos: cfg.FallbackAfterKerberos,
		NoAutoAnonymousLogin:  cfg.NoAutoAnonymousLogin,
		DebugToStderr:         cfg.DebugOutput == "stderr",
		DebugFile:             debugFile(cfg.DebugOutput),
		SOCKS5:                cfg.SOCKS5,
	}
}

func debugFile(output string) string {
	switch strings.ToLower(output) {
	case "", "stderr", "stdout":
		return ""
	}
	return output
}

func (o *Options) validate() error {
	switch {
	case o.Debug < 0:
		return fmt.Errorf("debug level must not be negative: %d", o.Debug)
	case o.Timeout < 0:
		return fmt.Errorf("timeout must not be negative: %v", o.Timeout)
	case len(o.NetBIOSName) > 15:
		return fmt.Errorf("netbios name longer than 15 characters: %q", o.NetBIOSName)
	}
	return nil
}

// applyDebug pushes the debug settings into the process-wide logger.
func (o *Options) applyDebug() {
	switch {
	case o.DebugFile != "":
		debug.SetOutput(o.DebugFile)
	case o.DebugToStderr:
		debug.SetOutput("stderr")
	default:
		debug.SetOutput("stdout")
	}
	debug.SetLevel(o.Debug)
}

// setOption sets one option by its libsmbclient-style name.
func (o *Options) setOption(name string, value any) error {
	badType := func() error {
		return fmt.Errorf("option %s: unexpected value type %T", name, value)
	}
	setBool := func(dst *bool) error {
		b, ok := value.(bool)
		if !ok {
			return badType()
		}
		*dst = b
		return nil
	}
	setString := func(dst *string) error {
		s, ok := value.(string)
		if !ok {
			return badType()
		}
		*dst = s
		return nil
	}

	switch name {
	case "netbiosName":
		return setString(&o.NetBIOSName)
	case "workgroup":
		return setString(&o.Workgroup)
	case "socks5":
		return setString(&o.SOCKS5)
	case "debug":
		n, ok := value.(int)
		if !ok || n < 0 {
			return badType()
		}
		o.Debug = n
	case "timeout":
		switch v := value.(type) {
		case time.Duration:
			o.Timeout = v
		case int:
			// milliseconds
			o.Timeout = time.Duration(v) * time.Millisecond
		default:
			return badType()
		}
		if o.Timeout < 0 {
			return fmt.Errorf("option timeout: negative value")
		}
	case "optionUseKerberos":
		return setBool(&o.UseKerberos)
	case "optionFallbackAfterKerberos":
		return setBool(&o.FallbackAfterKerberos)
	case "optionNoAutoAnonymousLogin":
		return setBool(&o.NoAutoAnonymousLogin)
	case "optionDebugToStderr":
		return setBool(&o.DebugToStderr)
	case "optionFullTimeNames":
		return setBool(&o.FullTimeNames)
	case "optionRequireSigning":
		return setBool(&o.RequireSigning)
	default:
		return fmt.Errorf("unknown option %q", name)
	}
	return nil
}
