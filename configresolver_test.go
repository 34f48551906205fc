package mdsession

import "testing"

func TestConfigResolverDefaultChannelSynthesis(t *testing.T) {
	cfg, err := newConfigResolver(nil, "instance", nil, CallOverrides{}).resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.ConfigChannelSet) != 1 {
		t.Fatalf("want 1 synthesized channel, got %d", len(cfg.ConfigChannelSet))
	}
	ch := cfg.ConfigChannelSet[0]
	if ch.Name != "Channel" || ch.Host != DefaultHost || ch.Service != DefaultPort {
		t.Fatalf("unexpected synthesized channel: %+v", ch)
	}
}

func TestConfigResolverCallOverrideWinsOverFileAndProgrammatic(t *testing.T) {
	src, err := NewYAMLConfigSource([]byte(`
RequestTimeout: 9999
Channels:
  Chan1:
    ChannelType: Socket
    Host: file-host
    Port: "1111"
`))
	if err != nil {
		t.Fatalf("NewYAMLConfigSource: %v", err)
	}
	opts := []ConfigOption{WithRequestTimeoutMs(5000), WithServiceDiscoveryURL("prog-url")}
	call := CallOverrides{Host: "call-host", Port: "2222", ServiceDiscoveryURL: "call-url"}

	cfg, err := newConfigResolver(src, "instance", opts, call).resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.RequestTimeoutMs != 5000 {
		t.Fatalf("programmatic override should win over file value, got %d", cfg.RequestTimeoutMs)
	}
	if cfg.ServiceDiscoveryURL != "call-url" {
		t.Fatalf("call override should win over programmatic override, got %q", cfg.ServiceDiscoveryURL)
	}
	if len(cfg.ConfigChannelSet) != 1 {
		t.Fatalf("want 1 channel, got %d", len(cfg.ConfigChannelSet))
	}
	ch := cfg.ConfigChannelSet[0]
	if ch.Host != "call-host" || ch.Service != "2222" {
		t.Fatalf("call override should win over file value, got host=%q service=%q", ch.Host, ch.Service)
	}
}

func TestConfigResolverUnsupportedChannelType(t *testing.T) {
	src, err := NewYAMLConfigSource([]byte(`
Channels:
  Chan1:
    ChannelType: Carrier-Pigeon
`))
	if err != nil {
		t.Fatalf("NewYAMLConfigSource: %v", err)
	}
	_, err = newConfigResolver(src, "instance", nil, CallOverrides{}).resolve()
	if err == nil {
		t.Fatal("want error for unsupported channel type")
	}
}

func TestConfigResolverWarmStandbySkipsMissingChannel(t *testing.T) {
	src, err := NewYAMLConfigSource([]byte(`
Channels:
  Primary:
    ChannelType: Socket
    Host: primary-host
    Port: "1111"
WarmStandbyChannels:
  WSB1:
    StartingActiveServer: Primary
    StandbyServerSet:
      - DoesNotExist
`))
	if err != nil {
		t.Fatalf("NewYAMLConfigSource: %v", err)
	}
	cfg, err := newConfigResolver(src, "instance", nil, CallOverrides{}).resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.ConfigWarmStandbySet) != 1 {
		t.Fatalf("want 1 warm-standby channel, got %d", len(cfg.ConfigWarmStandbySet))
	}
	wsb := cfg.ConfigWarmStandbySet[0]
	if wsb.StartingActive.Channel.Host != "primary-host" {
		t.Fatalf("unexpected starting-active channel: %+v", wsb.StartingActive.Channel)
	}
	if len(wsb.StandbyServerSet) != 0 {
		t.Fatalf("want 0 resolved standbys (missing channel skipped), got %d", len(wsb.StandbyServerSet))
	}
}

func TestConfigResolverWarmStandbySkippedWhenStartingActiveMissing(t *testing.T) {
	src, err := NewYAMLConfigSource([]byte(`
WarmStandbyChannels:
  WSB1:
    StartingActiveServer: DoesNotExist
`))
	if err != nil {
		t.Fatalf("NewYAMLConfigSource: %v", err)
	}
	cfg, err := newConfigResolver(src, "instance", nil, CallOverrides{}).resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.ConfigWarmStandbySet) != 0 {
		t.Fatalf("want 0 warm-standby channels, got %d", len(cfg.ConfigWarmStandbySet))
	}
	// Falls through to default-channel synthesis since both sets are empty.
	if len(cfg.ConfigChannelSet) != 1 {
		t.Fatalf("want default channel synthesized, got %d channels", len(cfg.ConfigChannelSet))
	}
}

func TestConfigResolverDeprecatedKeysLastWins(t *testing.T) {
	src, err := NewYAMLConfigSource([]byte(`
Channels:
  Chan1:
    ChannelType: Socket
    ReconnectAttemptLimit: 3
  Chan2:
    ChannelType: Socket
    ReconnectAttemptLimit: 7
`))
	if err != nil {
		t.Fatalf("NewYAMLConfigSource: %v", err)
	}
	cfg, err := newConfigResolver(src, "instance", nil, CallOverrides{}).resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cfg.ConfigErrors) == 0 {
		t.Fatal("want a config warning recorded for the deprecated per-channel key")
	}
	if cfg.ReconnectAttemptLimit != 7 {
		t.Fatalf("last channel (Chan2)'s ReconnectAttemptLimit should be the one applied instance-wide, got %d", cfg.ReconnectAttemptLimit)
	}
}
