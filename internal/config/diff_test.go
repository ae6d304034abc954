package config

import (
	"slices"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Server:  ServerConfig{ListenAddr: ":8729", LogLevel: LogInfo},
		Output:  OutputConfig{Module: OutputEspeakNG, EspeakNG: EspeakNGConfig{Rate: 175}},
		History: HistoryConfig{Backend: HistoryMemory, Capacity: 1024},
	}
}

func TestCompare_NoChange(t *testing.T) {
	t.Parallel()
	a, b := baseConfig(), baseConfig()
	if d := Compare(a, b); d.Changed() {
		t.Errorf("identical configs reported as changed: %+v", d)
	}
}

func TestCompare_LogLevelIsHot(t *testing.T) {
	t.Parallel()
	a, b := baseConfig(), baseConfig()
	b.Server.LogLevel = LogDebug

	d := Compare(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if len(d.RestartNeeded) != 0 {
		t.Errorf("log level change should not need a restart: %+v", d)
	}
}

func TestCompare_RestartFields(t *testing.T) {
	t.Parallel()
	a, b := baseConfig(), baseConfig()
	b.Server.ListenAddr = ":9000"
	b.Output.Module = OutputMock
	b.Output.EspeakNG.Rate = 200
	b.History.Capacity = 16

	d := Compare(a, b)
	want := []string{"server.listen_addr", "output.module", "output.espeakng", "history"}
	for _, field := range want {
		if !slices.Contains(d.RestartNeeded, field) {
			t.Errorf("RestartNeeded missing %q: %v", field, d.RestartNeeded)
		}
	}
	if d.LogLevelChanged {
		t.Error("log level falsely reported as changed")
	}
}
