package mdsession

import (
	"errors"
	"fmt"
)

// errUnsupportedChannelType is wrapped into the error returned when a
// channel node names a ChannelType the resolver does not recognize.
var errUnsupportedChannelType = errors.New("mdsession: unsupported channel type")

// CallOverrides is the highest-precedence layer of spec §4.1's chain:
// values supplied at the Initialize call site itself, which win over
// both the programmatic-override layer (ConfigOption) and the
// configuration file.
type CallOverrides struct {
	Host string
	Port string

	ProxyHost     string
	ProxyPort     string
	ProxyUser     string
	ProxyPassword string
	ProxyDomain   string

	TLSCertFile string
	TLSKeyFile  string
	SSLCAStore  string

	ObjectName       string
	SecurityProtocol string

	ServiceDiscoveryURL string
	TokenServiceURLV1   string
	TokenServiceURLV2   string
}

// configResolver merges a ConfigSource, a programmatic-override layer,
// and CallOverrides into an ActiveConfig (spec §4.1). eventloop carries
// no file-backed configuration at all, so this merge logic is new; the
// small-purpose-built-type style (vs. one god object) follows the
// package's general preference for narrow collaborators over a single
// do-everything type.
type configResolver struct {
	source        ConfigSource
	instanceName  string
	programmatic  *programmaticOverrides
	callOverrides CallOverrides
	errors        []ConfigError
}

func newConfigResolver(source ConfigSource, instanceName string, opts []ConfigOption, call CallOverrides) *configResolver {
	if source == nil {
		source = emptyConfigSource{}
	}
	return &configResolver{
		source:        source,
		instanceName:  instanceName,
		programmatic:  resolveProgrammaticOverrides(opts),
		callOverrides: call,
	}
}

// resolve produces the ActiveConfig. A nil source is treated as "no
// file layer": every field falls back to its programmatic override, or
// the built-in default.
func (r *configResolver) resolve() (*ActiveConfig, error) {
	cfg := &ActiveConfig{InstanceName: r.instanceName}

	cfg.ItemCountHint = r.resolveUint32("ItemCountHint", r.programmatic.itemCountHint, defaultItemCountHint)
	cfg.ServiceCountHint = r.resolveUint32("ServiceCountHint", r.programmatic.serviceCountHint, defaultServiceCountHint)

	cfg.RequestTimeoutMs = r.resolveUint32("RequestTimeout", r.programmatic.requestTimeoutMs, defaultRequestTimeoutMs)
	cfg.LoginRequestTimeoutMs = r.resolveUint32("LoginRequestTimeOut", r.programmatic.loginRequestTimeoutMs, defaultLoginRequestTimeoutMs)
	cfg.RestRequestTimeoutMs = r.resolveUint32("RestRequestTimeOut", r.programmatic.restRequestTimeoutMs, defaultRestRequestTimeoutMs)

	cfg.DispatchModel = DispatchModeUserThread
	if r.programmatic.dispatchModel != nil {
		cfg.DispatchModel = *r.programmatic.dispatchModel
	}
	cfg.DispatchTimeoutAPIThreadMicros = r.resolveInt64("DispatchTimeoutApiThread", r.programmatic.dispatchTimeoutAPIThreadMicros, defaultDispatchTimeoutAPIThread)
	cfg.MaxDispatchCountAPIThread = r.resolveUint32("MaxDispatchCountApiThread", r.programmatic.maxDispatchCountAPIThread, defaultMaxDispatchCountAPIThread)
	cfg.MaxDispatchCountUserThread = r.resolveUint32("MaxDispatchCountUserThread", r.programmatic.maxDispatchCountUserThread, defaultMaxDispatchCountUserThread)

	cfg.MaxEventsInPool = defaultMaxEventsInPool
	if v, ok := r.source.GetInt("MaxEventsInPool"); ok {
		cfg.MaxEventsInPool = int32(v)
	}
	if r.programmatic.maxEventsInPool != nil {
		cfg.MaxEventsInPool = *r.programmatic.maxEventsInPool
	}
	if cfg.MaxEventsInPool < -1 {
		cfg.MaxEventsInPool = -1
	}

	cfg.TokenReissueRatio = defaultTokenReissueRatio
	if v, ok := r.source.GetFloat("TokenReissueRatio"); ok {
		cfg.TokenReissueRatio = v
	}
	if r.programmatic.tokenReissueRatio != nil {
		cfg.TokenReissueRatio = *r.programmatic.tokenReissueRatio
	}

	cfg.ReissueTokenAttemptLimit = r.resolveInt64("ReissueTokenAttemptLimit", r.programmatic.reissueTokenAttemptLimit, defaultReissueTokenAttemptLimit)
	cfg.ReissueTokenAttemptIntervalMs = r.resolveInt64("ReissueTokenAttemptInterval", r.programmatic.reissueTokenAttemptIntervalMs, defaultReissueTokenAttemptIntervalMs)

	cfg.CatchUnhandledException = false
	if v, ok := r.source.GetBool("CatchUnhandledException"); ok {
		cfg.CatchUnhandledException = v
	}
	if r.programmatic.catchUnhandledException != nil {
		cfg.CatchUnhandledException = *r.programmatic.catchUnhandledException
	}

	cfg.ReconnectAttemptLimit = r.resolveInt64("ReconnectAttemptLimit", r.programmatic.reconnectAttemptLimit, defaultReconnectAttemptLimit)
	cfg.ReconnectMinDelayMs = r.resolveInt64("ReconnectMinDelay", r.programmatic.reconnectMinDelayMs, defaultReconnectMinDelayMs)
	cfg.ReconnectMaxDelayMs = r.resolveInt64("ReconnectMaxDelay", r.programmatic.reconnectMaxDelayMs, defaultReconnectMaxDelayMs)

	cfg.XMLTraceToFile, _ = r.source.GetBool("XmlTraceToFile")
	cfg.XMLTraceToStdout, _ = r.source.GetBool("XmlTraceToStdout")
	cfg.XMLTraceToMultipleFiles, _ = r.source.GetBool("XmlTraceToMultipleFiles")
	cfg.XMLTraceWrite, _ = r.source.GetBool("XmlTraceWrite")
	cfg.XMLTraceRead, _ = r.source.GetBool("XmlTraceRead")
	cfg.XMLTracePing, _ = r.source.GetBool("XmlTracePing")
	cfg.XMLTraceHex, _ = r.source.GetBool("XmlTraceHex")
	cfg.XMLTraceDump, _ = r.source.GetBool("XmlTraceDump")
	cfg.XMLTraceFileName, _ = r.source.GetString("XmlTraceFileName")
	cfg.XMLTraceMaxFileSize, _ = r.source.GetInt("XmlTraceMaxFileSize")

	cfg.MsgKeyInUpdates, _ = r.source.GetBool("MsgKeyInUpdates")
	if v, ok := r.source.GetUint("DefaultServiceID"); ok {
		cfg.DefaultServiceID = clampUint16(v)
	}
	cfg.JSONExpandedEnumFields, _ = r.source.GetBool("JsonExpandedEnumFields")
	cfg.CatchUnknownJSONFids, _ = r.source.GetBool("CatchUnknownJsonFids")
	cfg.CatchUnknownJSONKeys, _ = r.source.GetBool("CatchUnknownJsonKeys")
	cfg.CloseChannelFromConverterFailure, _ = r.source.GetBool("CloseChannelFromConverterFailure")
	cfg.EnableRTT, _ = r.source.GetBool("EnableRtt")
	cfg.OutputBufferSize = r.resolveUint32("OutputBufferSize", nil, defaultOutputBufferSize)

	cfg.RestLogFileName, _ = r.source.GetString("RestLogFileName")
	cfg.RestEnableLog, _ = r.source.GetBool("RestEnableLog")

	cfg.PipePort = r.resolveInt64("PipePort", r.programmatic.pipePort, 0)

	cfg.LoggerType = LoggerTypeStdout
	cfg.LoggerSeverity = LogLevelInfo
	if r.programmatic.loggerType != nil {
		cfg.LoggerType = *r.programmatic.loggerType
	}
	if r.programmatic.loggerFileName != nil {
		cfg.LoggerFileName = *r.programmatic.loggerFileName
	}
	if r.programmatic.loggerSeverity != nil {
		cfg.LoggerSeverity = *r.programmatic.loggerSeverity
	}
	if r.programmatic.includeDateInLoggerOutput != nil {
		cfg.IncludeDateInLoggerOutput = *r.programmatic.includeDateInLoggerOutput
	}
	cfg.MaxLogFileSize = r.resolveInt64("MaxLogFileSize", r.programmatic.maxLogFileSize, 10*1024*1024)
	if r.programmatic.numberOfLogFiles != nil {
		cfg.NumberOfLogFiles = *r.programmatic.numberOfLogFiles
	} else {
		cfg.NumberOfLogFiles = 1
	}

	cfg.ServiceDiscoveryURL, _ = r.source.GetString("ServiceDiscoveryUrl")
	if r.programmatic.serviceDiscoveryURL != nil {
		cfg.ServiceDiscoveryURL = *r.programmatic.serviceDiscoveryURL
	}
	if r.callOverrides.ServiceDiscoveryURL != "" {
		cfg.ServiceDiscoveryURL = r.callOverrides.ServiceDiscoveryURL
	}

	cfg.TokenServiceURLV1, _ = r.source.GetString("TokenServiceUrlV1")
	cfg.TokenServiceURLV2, _ = r.source.GetString("TokenServiceUrlV2")
	if r.programmatic.tokenServiceURLV1 != nil {
		cfg.TokenServiceURLV1 = *r.programmatic.tokenServiceURLV1
	}
	if r.programmatic.tokenServiceURLV2 != nil {
		cfg.TokenServiceURLV2 = *r.programmatic.tokenServiceURLV2
	}
	if r.callOverrides.TokenServiceURLV1 != "" {
		cfg.TokenServiceURLV1 = r.callOverrides.TokenServiceURLV1
	}
	if r.callOverrides.TokenServiceURLV2 != "" {
		cfg.TokenServiceURLV2 = r.callOverrides.TokenServiceURLV2
	}

	if err := r.buildChannelSets(cfg); err != nil {
		return nil, err
	}

	cfg.ConfigErrors = r.errors
	return cfg, nil
}

// buildChannelSets implements §4.1's channel-set and warm-standby-set
// construction, including default-channel synthesis (P7) and
// warm-standby resolution.
func (r *configResolver) buildChannelSets(cfg *ActiveConfig) error {
	for _, name := range r.source.ChannelNames() {
		ch, err := r.resolveChannel(name, false)
		if err != nil {
			return err
		}
		cfg.ConfigChannelSet = append(cfg.ConfigChannelSet, *ch)
	}
	r.applyDeprecatedKeysLastWins(cfg, cfg.ConfigChannelSet)
	r.applyCallOverrides(cfg.ConfigChannelSet)

	for _, name := range r.source.WarmStandbyChannelNames() {
		wsb, err := r.resolveWarmStandbyChannel(name)
		if err != nil {
			return err
		}
		if wsb == nil {
			continue // referenced starting-active channel missing; skipped, not fatal
		}
		cfg.ConfigWarmStandbySet = append(cfg.ConfigWarmStandbySet, *wsb)
		cfg.ConfigChannelSetForWSB = append(cfg.ConfigChannelSetForWSB, wsb.StartingActive.Channel)
		for _, standby := range wsb.StandbyServerSet {
			cfg.ConfigChannelSetForWSB = append(cfg.ConfigChannelSetForWSB, standby.Channel)
		}
	}
	r.applyCallOverrides(cfg.ConfigChannelSetForWSB)

	if len(cfg.ConfigChannelSet) == 0 && len(cfg.ConfigWarmStandbySet) == 0 {
		// P7: default-channel synthesis.
		def := ChannelConfig{Name: "Channel", Type: ChannelTypeSocket, Host: DefaultHost, Service: DefaultPort}
		if r.callOverrides.Host != "" {
			def.Host = r.callOverrides.Host
		}
		if r.callOverrides.Port != "" {
			def.Service = r.callOverrides.Port
		}
		cfg.ConfigChannelSet = append(cfg.ConfigChannelSet, def)
	}

	return nil
}

func (r *configResolver) resolveChannel(name string, sessionManagement bool) (*ChannelConfig, error) {
	node, ok := r.source.Channel(name)
	if !ok {
		return nil, fmt.Errorf("mdsession: channel %q not found", name)
	}
	typ, _ := node.GetString("ChannelType")
	ch := &ChannelConfig{Name: name}
	switch typ {
	case "", "Socket":
		ch.Type = ChannelTypeSocket
	case "ReliableMulticast":
		ch.Type = ChannelTypeReliableMulticast
	default:
		return nil, fmt.Errorf("%w: channel %q has type %q", errUnsupportedChannelType, name, typ)
	}

	ch.Host, _ = node.GetString("Host")
	ch.Service, _ = node.GetString("Port")
	ch.ObjectName, _ = node.GetString("ObjectName")
	ch.SecurityProtocol, _ = node.GetString("SecurityProtocol")
	ch.ProxyHost, _ = node.GetString("ProxyHost")
	ch.ProxyPort, _ = node.GetString("ProxyPort")
	ch.ProxyUser, _ = node.GetString("ProxyUser")
	ch.ProxyPassword, _ = node.GetString("ProxyPassword")
	ch.ProxyDomain, _ = node.GetString("ProxyDomain")
	ch.TLSCertFile, _ = node.GetString("TLSCertFile")
	ch.TLSKeyFile, _ = node.GetString("TLSKeyFile")
	ch.SSLCAStore, _ = node.GetString("SSLCAStore")

	ch.RecvAddress, _ = node.GetString("RecvAddress")
	ch.RecvPort, _ = node.GetString("RecvPort")
	ch.SendAddress, _ = node.GetString("SendAddress")
	ch.SendPort, _ = node.GetString("SendPort")
	ch.UnicastPort, _ = node.GetString("UnicastPort")

	if v, ok := node.GetInt("ReconnectAttemptLimit"); ok {
		ch.ReconnectAttemptLimit = v
	}
	if v, ok := node.GetInt("ReconnectMinDelay"); ok {
		ch.ReconnectMinDelayMs = v
	}
	if v, ok := node.GetInt("ReconnectMaxDelay"); ok {
		ch.ReconnectMaxDelayMs = v
	}
	ch.XMLTraceToStdout, _ = node.GetBool("XmlTraceToStdout")
	ch.MsgKeyInUpdates, _ = node.GetBool("MsgKeyInUpdates")

	ch.applyDefaultHostService(sessionManagement)
	return ch, nil
}

// applyDeprecatedKeysLastWins implements spec §4.1's "Deprecated
// per-channel keys" rule: reconnect bounds / XML-trace flags /
// MsgKeyInUpdates read from a channel node update the instance-level
// config, with a warning, applied only from the last channel in the
// set; every earlier channel that sets one of these keys gets a warning
// that its value is ignored -- the documented Open-Question resolution
// ("last wins") is recorded in DESIGN.md.
func (r *configResolver) applyDeprecatedKeysLastWins(cfg *ActiveConfig, channels []ChannelConfig) {
	if len(channels) == 0 {
		return
	}
	last := channels[len(channels)-1]
	for _, ch := range channels[:len(channels)-1] {
		if ch.ReconnectAttemptLimit != 0 || ch.ReconnectMinDelayMs != 0 || ch.ReconnectMaxDelayMs != 0 || ch.XMLTraceToStdout || ch.MsgKeyInUpdates {
			r.warn("Channels."+ch.Name, "deprecated per-channel key ignored: only the last channel in the set is applied to instance config")
		}
	}
	if last.ReconnectAttemptLimit != 0 || last.ReconnectMinDelayMs != 0 || last.ReconnectMaxDelayMs != 0 {
		if last.ReconnectAttemptLimit != 0 {
			cfg.ReconnectAttemptLimit = last.ReconnectAttemptLimit
		}
		if last.ReconnectMinDelayMs != 0 {
			cfg.ReconnectMinDelayMs = last.ReconnectMinDelayMs
		}
		if last.ReconnectMaxDelayMs != 0 {
			cfg.ReconnectMaxDelayMs = last.ReconnectMaxDelayMs
		}
		r.warn("Channels."+last.Name+".ReconnectAttemptLimit",
			"deprecated per-channel reconnect bounds applied to instance config from the last channel in the set")
	}
	if last.XMLTraceToStdout {
		cfg.XMLTraceToStdout = true
		r.warn("Channels."+last.Name+".XmlTraceToStdout", "deprecated per-channel XML-trace flag applied to instance config")
	}
	if last.MsgKeyInUpdates {
		cfg.MsgKeyInUpdates = true
		r.warn("Channels."+last.Name+".MsgKeyInUpdates", "deprecated per-channel MsgKeyInUpdates applied to instance config")
	}
}

// applyCallOverrides applies the highest-precedence, per-call overrides
// to every Socket channel's connection fields.
func (r *configResolver) applyCallOverrides(channels []ChannelConfig) {
	o := r.callOverrides
	for i := range channels {
		ch := &channels[i]
		if ch.Type != ChannelTypeSocket {
			continue
		}
		if o.Host != "" {
			ch.Host = o.Host
		}
		if o.Port != "" {
			ch.Service = o.Port
		}
		if o.ProxyHost != "" {
			ch.ProxyHost = o.ProxyHost
		}
		if o.ProxyPort != "" {
			ch.ProxyPort = o.ProxyPort
		}
		if o.ProxyUser != "" {
			ch.ProxyUser = o.ProxyUser
		}
		if o.ProxyPassword != "" {
			ch.ProxyPassword = o.ProxyPassword
		}
		if o.ProxyDomain != "" {
			ch.ProxyDomain = o.ProxyDomain
		}
		if o.TLSCertFile != "" {
			ch.TLSCertFile = o.TLSCertFile
		}
		if o.TLSKeyFile != "" {
			ch.TLSKeyFile = o.TLSKeyFile
		}
		if o.SSLCAStore != "" {
			ch.SSLCAStore = o.SSLCAStore
		}
		if o.ObjectName != "" {
			ch.ObjectName = o.ObjectName
		}
		if o.SecurityProtocol != "" {
			ch.SecurityProtocol = o.SecurityProtocol
		}
	}
}

// resolveWarmStandbyChannel implements spec §4.1's warm-standby
// resolution algorithm: one starting-active server name plus an
// ordered list of standby server names, each resolved against the
// primary channel catalog. Returns (nil, nil) if the starting-active
// server's channel name does not exist in the catalog (skipped, not
// fatal, per scenario 4).
func (r *configResolver) resolveWarmStandbyChannel(name string) (*WarmStandbyChannelConfig, error) {
	node, ok := r.source.WarmStandbyChannel(name)
	if !ok {
		return nil, fmt.Errorf("mdsession: warm-standby channel %q not found", name)
	}

	startingName, _ := node.GetString("StartingActiveServer")
	startingInfo, err := r.resolveWarmStandbyServerInfo(node, startingName, "StartingActiveServerPerServiceNameSet")
	if err != nil {
		return nil, err
	}
	if startingInfo == nil {
		return nil, nil
	}

	wsb := &WarmStandbyChannelConfig{Name: name, StartingActive: *startingInfo}

	standbyNames, _ := node.GetStringList("StandbyServerSet")
	for _, standbyName := range standbyNames {
		info, err := r.resolveWarmStandbyServerInfo(node, standbyName, "StandbyPerServiceNameSet")
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue // referenced channel missing: skipped, not fatal
		}
		wsb.StandbyServerSet = append(wsb.StandbyServerSet, *info)
	}

	return wsb, nil
}

func (r *configResolver) resolveWarmStandbyServerInfo(node ConfigSource, channelName, perServiceKey string) (*WarmStandbyServerInfo, error) {
	if channelName == "" {
		return nil, nil
	}
	if _, ok := r.source.Channel(channelName); !ok {
		return nil, nil // referenced channel name not in the catalog: skipped
	}
	ch, err := r.resolveChannel(channelName, true)
	if err != nil {
		return nil, err
	}
	perService, _ := node.GetStringList(perServiceKey)
	return &WarmStandbyServerInfo{Channel: *ch, PerServiceNameSet: perService}, nil
}

func (r *configResolver) warn(path, message string) {
	r.errors = append(r.errors, ConfigError{Path: path, Message: message})
}

func (r *configResolver) resolveUint32(path string, programmaticVal *uint32, def uint32) uint32 {
	v := def
	if s, ok := r.source.GetUint(path); ok {
		v = saturateUint32(s)
	}
	if programmaticVal != nil {
		v = *programmaticVal
	}
	return v
}

func (r *configResolver) resolveInt64(path string, programmaticVal *int64, def int64) int64 {
	v := def
	if s, ok := r.source.GetInt(path); ok {
		v = clampInt32Range(s)
	}
	if programmaticVal != nil {
		v = *programmaticVal
	}
	return v
}

func saturateUint32(v uint64) uint32 {
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(v)
}

func clampInt32Range(v int64) int64 {
	const maxInt32 = int64(1)<<31 - 1
	const minInt32 = -(int64(1) << 31)
	if v > maxInt32 {
		return maxInt32
	}
	if v < minInt32 {
		return minInt32
	}
	return v
}

func clampUint16(v uint64) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
