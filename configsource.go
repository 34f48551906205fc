package mdsession

// ConfigSource exposes a layered configuration file's values by dotted
// path (spec §4.1: "a layered configuration source exposing
// get<T>(path) -> option<T>"). eventloop has no file-backed
// configuration, so the interface itself is new, but its shape (a
// narrow lookup contract an external parser satisfies) follows this
// package's preference for small, composition-friendly interfaces over
// one large config struct.
type ConfigSource interface {
	// GetString returns the string value at path, or ok=false if absent.
	GetString(path string) (value string, ok bool)
	// GetUint returns the unsigned integer value at path.
	GetUint(path string) (value uint64, ok bool)
	// GetInt returns the signed integer value at path.
	GetInt(path string) (value int64, ok bool)
	// GetFloat returns the floating-point value at path.
	GetFloat(path string) (value float64, ok bool)
	// GetBool returns the boolean value at path.
	GetBool(path string) (value bool, ok bool)
	// ChannelNames returns the names of every channel node in the
	// source's channel-set catalog, walked in order to build the primary
	// channel set (warm-standby resolution checks names through Channel).
	ChannelNames() []string
	// WarmStandbyChannelNames returns the names of every warm-standby
	// channel node.
	WarmStandbyChannelNames() []string
	// Channel returns the raw node for a channel name, keyed by the
	// per-channel config names (case-sensitive, e.g. "Host", "Port",
	// "ChannelType"), or ok=false if the name does not exist.
	Channel(name string) (node ConfigSource, ok bool)
	// WarmStandbyChannel returns the raw node for a warm-standby channel
	// name.
	WarmStandbyChannel(name string) (node ConfigSource, ok bool)
	// GetStringList returns a list-valued node at path (used for
	// StandbyServerSet / PerServiceNameSet entries).
	GetStringList(path string) (value []string, ok bool)
}

// emptyConfigSource is the zero-value ConfigSource substituted when
// Initialize is called with no configuration file layer at all: every
// lookup misses, so resolution falls straight through to the
// programmatic-override layer and built-in defaults.
type emptyConfigSource struct{}

func (emptyConfigSource) GetString(string) (string, bool)            { return "", false }
func (emptyConfigSource) GetUint(string) (uint64, bool)              { return 0, false }
func (emptyConfigSource) GetInt(string) (int64, bool)                { return 0, false }
func (emptyConfigSource) GetFloat(string) (float64, bool)            { return 0, false }
func (emptyConfigSource) GetBool(string) (bool, bool)                { return false, false }
func (emptyConfigSource) ChannelNames() []string                     { return nil }
func (emptyConfigSource) WarmStandbyChannelNames() []string          { return nil }
func (emptyConfigSource) Channel(string) (ConfigSource, bool)        { return nil, false }
func (emptyConfigSource) WarmStandbyChannel(string) (ConfigSource, bool) { return nil, false }
func (emptyConfigSource) GetStringList(string) ([]string, bool)      { return nil, false }
