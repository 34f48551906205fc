// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package mdsession

// programmaticOverrides holds the "programmatic override" layer of
// spec §4.1's precedence chain (file value < programmatic override <
// per-call override), generalized from eventloop's loopOptions /
// LoopOption pattern (options.go) from a single flat struct to this
// package's much larger ActiveConfig surface.
type programmaticOverrides struct {
	itemCountHint    *uint32
	serviceCountHint *uint32

	requestTimeoutMs      *uint32
	loginRequestTimeoutMs *uint32
	restRequestTimeoutMs  *uint32

	dispatchModel                  *DispatchModel
	dispatchTimeoutAPIThreadMicros *int64
	maxDispatchCountAPIThread      *uint32
	maxDispatchCountUserThread     *uint32

	maxEventsInPool *int32

	tokenReissueRatio             *float64
	reissueTokenAttemptLimit      *int64
	reissueTokenAttemptIntervalMs *int64

	catchUnhandledException *bool

	reconnectAttemptLimit *int64
	reconnectMinDelayMs   *int64
	reconnectMaxDelayMs   *int64

	loggerType                *LoggerType
	loggerFileName            *string
	loggerSeverity            *LogLevel
	includeDateInLoggerOutput *bool
	maxLogFileSize            *int64
	numberOfLogFiles          *int

	serviceDiscoveryURL *string
	tokenServiceURLV1   *string
	tokenServiceURLV2   *string

	pipePort *int64
}

// ConfigOption configures the programmatic-override layer applied by a
// ConfigResolver, sitting above file values and below per-call overrides
// in spec §4.1's precedence chain.
type ConfigOption interface {
	applyConfig(*programmaticOverrides)
}

type configOptionFunc func(*programmaticOverrides)

func (f configOptionFunc) applyConfig(o *programmaticOverrides) { f(o) }

// WithItemCountHint overrides ItemCountHint.
func WithItemCountHint(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.itemCountHint = &v })
}

// WithServiceCountHint overrides ServiceCountHint.
func WithServiceCountHint(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.serviceCountHint = &v })
}

// WithRequestTimeoutMs overrides RequestTimeout.
func WithRequestTimeoutMs(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.requestTimeoutMs = &v })
}

// WithLoginRequestTimeoutMs overrides LoginRequestTimeOut. A value of 0
// disables the login watchdog entirely (P8).
func WithLoginRequestTimeoutMs(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.loginRequestTimeoutMs = &v })
}

// WithRestRequestTimeoutMs overrides RestRequestTimeOut.
func WithRestRequestTimeoutMs(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.restRequestTimeoutMs = &v })
}

// WithDispatchModel selects UserThread or APIThread dispatch.
func WithDispatchModel(v DispatchModel) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.dispatchModel = &v })
}

// WithDispatchTimeoutAPIThreadMicros overrides DispatchTimeoutApiThread.
func WithDispatchTimeoutAPIThreadMicros(v int64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.dispatchTimeoutAPIThreadMicros = &v })
}

// WithMaxDispatchCountAPIThread overrides MaxDispatchCountApiThread.
func WithMaxDispatchCountAPIThread(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.maxDispatchCountAPIThread = &v })
}

// WithMaxDispatchCountUserThread overrides MaxDispatchCountUserThread.
func WithMaxDispatchCountUserThread(v uint32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.maxDispatchCountUserThread = &v })
}

// WithMaxEventsInPool overrides MaxEventsInPool, clamped to >= -1 at
// resolve time.
func WithMaxEventsInPool(v int32) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.maxEventsInPool = &v })
}

// WithTokenReissueRatio overrides TokenReissueRatio.
func WithTokenReissueRatio(v float64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.tokenReissueRatio = &v })
}

// WithReissueTokenAttemptLimit overrides ReissueTokenAttemptLimit.
func WithReissueTokenAttemptLimit(v int64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.reissueTokenAttemptLimit = &v })
}

// WithReissueTokenAttemptIntervalMs overrides ReissueTokenAttemptInterval.
func WithReissueTokenAttemptIntervalMs(v int64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.reissueTokenAttemptIntervalMs = &v })
}

// WithCatchUnhandledException overrides CatchUnhandledException.
func WithCatchUnhandledException(v bool) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.catchUnhandledException = &v })
}

// WithReconnectBounds overrides ReconnectAttemptLimit/MinDelay/MaxDelay
// together, since the source always treats the three as a unit.
func WithReconnectBounds(attemptLimit, minDelayMs, maxDelayMs int64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) {
		o.reconnectAttemptLimit = &attemptLimit
		o.reconnectMinDelayMs = &minDelayMs
		o.reconnectMaxDelayMs = &maxDelayMs
	})
}

// WithLogger selects the built-in logger sink and its parameters,
// superseded entirely if an external Logger is supplied through
// SessionOptions.Logger (spec §4.5 step 3: "Create the internal logger if
// none was injected").
func WithLogger(loggerType LoggerType, fileName string, severity LogLevel, includeDate bool, maxFileSizeBytes int64, numberOfFiles int) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) {
		o.loggerType = &loggerType
		o.loggerFileName = &fileName
		o.loggerSeverity = &severity
		o.includeDateInLoggerOutput = &includeDate
		o.maxLogFileSize = &maxFileSizeBytes
		o.numberOfLogFiles = &numberOfFiles
	})
}

// WithServiceDiscoveryURL overrides the service-discovery endpoint.
func WithServiceDiscoveryURL(v string) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.serviceDiscoveryURL = &v })
}

// WithTokenServiceURLs overrides both token-service endpoint versions.
func WithTokenServiceURLs(v1, v2 string) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) {
		o.tokenServiceURLV1 = &v1
		o.tokenServiceURLV2 = &v2
	})
}

// WithPipePort is accepted for source compatibility and has no effect:
// this package's wakeup mechanism always uses an anonymous platform
// pipe/eventfd (see wakeup.go), never a TCP loopback port. The value is
// retained on ActiveConfig; when non-zero, Session.Initialize logs a
// notice at info level once per process, per DESIGN.md's Open Question
// decision for this field.
func WithPipePort(v int64) ConfigOption {
	return configOptionFunc(func(o *programmaticOverrides) { o.pipePort = &v })
}

// resolveProgrammaticOverrides applies ConfigOption values in order,
// later options winning over earlier ones for the same field -- mirrors
// eventloop's resolveLoopOptions, generalized from a single flat
// loopOptions struct to the pointer-per-field overlay this package's
// three-layer precedence needs (nil means "not set at this layer").
func resolveProgrammaticOverrides(opts []ConfigOption) *programmaticOverrides {
	o := &programmaticOverrides{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyConfig(o)
	}
	return o
}
