package mdsession

import "time"

// Built-in defaults, ported from OmmBaseImpl.cpp's hard-coded
// channel-default constants.
const (
	DefaultHost = "localhost"
	DefaultPort = "14002"

	defaultItemCountHint              = uint32(100000)
	defaultServiceCountHint           = uint32(513)
	defaultRequestTimeoutMs           = uint32(15000)
	defaultLoginRequestTimeoutMs      = uint32(45000)
	defaultRestRequestTimeoutMs       = uint32(15000)
	defaultDispatchTimeoutAPIThread   = int64(100000) // microseconds
	defaultMaxDispatchCountAPIThread  = uint32(100)
	defaultMaxDispatchCountUserThread = uint32(100)
	defaultMaxEventsInPool            = int32(-1)
	defaultTokenReissueRatio          = 0.8
	defaultReissueTokenAttemptLimit   = int64(-1)
	defaultReissueTokenAttemptIntervalMs = int64(5000)
	defaultReconnectAttemptLimit      = int64(-1)
	defaultReconnectMinDelayMs        = int64(1000)
	defaultReconnectMaxDelayMs        = int64(5000)
	defaultOutputBufferSize           = uint32(0)
)

// DispatchModel selects which thread runs the dispatch loop (spec §5).
type DispatchModel int

const (
	// DispatchModeUserThread means the user calls Session.Dispatch
	// explicitly; no internal thread is started.
	DispatchModeUserThread DispatchModel = iota
	// DispatchModeAPIThread means Session.Initialize starts and owns an
	// internal dispatch goroutine.
	DispatchModeAPIThread
)

// ChannelType tags the ChannelConfig variant (spec §3).
type ChannelType int

const (
	ChannelTypeSocket ChannelType = iota
	ChannelTypeReliableMulticast
)

// EncryptedProtocolType further tags a Socket channel, per spec §3's
// "encrypted-protocol sub-tag".
type EncryptedProtocolType int

const (
	EncryptedProtocolNone EncryptedProtocolType = iota
	EncryptedProtocolTLSv1_2
	EncryptedProtocolTLSv1_3
)

// ChannelConfig is the tagged Socket|ReliableMulticast variant of §3.
// Only the fields relevant to the variant named by Type are meaningful;
// this mirrors the source's per-subclass field layout without
// introducing Go interfaces for what is, in practice, a closed set of
// two shapes resolved once at config time.
type ChannelConfig struct {
	Name string
	Type ChannelType

	// Socket fields.
	Host                string
	Service             string
	EncryptedProtocol    EncryptedProtocolType
	ObjectName           string
	SecurityProtocol     string
	ProxyHost            string
	ProxyPort            string
	ProxyUser            string
	ProxyPassword        string
	ProxyDomain          string
	TLSCertFile          string
	TLSKeyFile           string
	SSLCAStore           string

	// ReliableMulticast fields.
	RecvAddress string
	RecvPort    string
	SendAddress string
	SendPort    string
	UnicastPort string

	// Deprecated per-channel keys (spec §4.1 "Deprecated per-channel
	// keys"): still read, but only ever applied instance-wide.
	ReconnectAttemptLimit int64
	ReconnectMinDelayMs   int64
	ReconnectMaxDelayMs   int64
	XMLTraceToStdout      bool
	MsgKeyInUpdates       bool
}

// applyDefaultHostService implements the Socket-channel invariant from
// spec §3: "a Socket channel whose session-management flag is false and
// whose host or service is empty receives a default host/service".
func (c *ChannelConfig) applyDefaultHostService(sessionManagement bool) {
	if c.Type != ChannelTypeSocket || sessionManagement {
		return
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Service == "" {
		c.Service = DefaultPort
	}
}

// WarmStandbyServerInfo refers to a ChannelConfig by value (spec §3: "by
// value, not shared") plus an optional per-service-name allowlist.
type WarmStandbyServerInfo struct {
	Channel          ChannelConfig
	PerServiceNameSet []string
}

// WarmStandbyChannelConfig is one resolved warm-standby topology: one
// starting-active server and an ordered list of standbys.
type WarmStandbyChannelConfig struct {
	Name             string
	StartingActive   WarmStandbyServerInfo
	StandbyServerSet []WarmStandbyServerInfo
}

// ConfigError is a buffered config-warning record (spec §7: "Config
// warnings accumulate in a config-error buffer and are flushed to the
// logger after the logger is created").
type ConfigError struct {
	Path    string
	Message string
}

// ActiveConfig is the immutable-after-bring-up configuration record
// produced by ConfigResolver.Resolve (spec §3/§6.1).
type ActiveConfig struct {
	InstanceName string

	ItemCountHint    uint32
	ServiceCountHint uint32

	RequestTimeoutMs      uint32
	LoginRequestTimeoutMs uint32
	RestRequestTimeoutMs  uint32

	DispatchModel                 DispatchModel
	DispatchTimeoutAPIThreadMicros int64
	MaxDispatchCountAPIThread      uint32
	MaxDispatchCountUserThread     uint32

	MaxEventsInPool int32

	TokenReissueRatio            float64
	ReissueTokenAttemptLimit     int64
	ReissueTokenAttemptIntervalMs int64

	CatchUnhandledException bool

	ReconnectAttemptLimit int64
	ReconnectMinDelayMs   int64
	ReconnectMaxDelayMs   int64

	XMLTraceToFile          bool
	XMLTraceToStdout        bool
	XMLTraceToMultipleFiles bool
	XMLTraceWrite           bool
	XMLTraceRead            bool
	XMLTracePing            bool
	XMLTraceHex             bool
	XMLTraceDump            bool
	XMLTraceFileName        string
	XMLTraceMaxFileSize     int64

	MsgKeyInUpdates                  bool
	DefaultServiceID                 uint16
	JSONExpandedEnumFields            bool
	CatchUnknownJSONFids              bool
	CatchUnknownJSONKeys               bool
	CloseChannelFromConverterFailure bool
	EnableRTT                         bool
	OutputBufferSize                  uint32

	RestLogFileName string
	RestEnableLog   bool

	// PipePort is accepted and ignored on platforms using anonymous
	// pipes (spec's Open Question / §6.1 "no-op on platforms using
	// anonymous pipes; retained for compatibility").
	PipePort int64

	LoggerType                LoggerType
	LoggerFileName            string
	LoggerSeverity            LogLevel
	IncludeDateInLoggerOutput bool
	MaxLogFileSize            int64
	NumberOfLogFiles          int

	ServiceDiscoveryURL string
	TokenServiceURLV1   string
	TokenServiceURLV2   string

	ConfigChannelSet        []ChannelConfig
	ConfigWarmStandbySet    []WarmStandbyChannelConfig
	ConfigChannelSetForWSB  []ChannelConfig

	ConfigErrors []ConfigError
}

// LoggerType selects the built-in logger sink (spec §6.1).
type LoggerType int

const (
	LoggerTypeStdout LoggerType = iota
	LoggerTypeFile
)

// loginWatchdogDuration converts LoginRequestTimeoutMs to a
// time.Duration, per P8: a value of 0 disables the watchdog entirely.
func (c *ActiveConfig) loginWatchdogDuration() (time.Duration, bool) {
	if c.LoginRequestTimeoutMs == 0 {
		return 0, false
	}
	return time.Duration(c.LoginRequestTimeoutMs) * time.Millisecond, true
}
