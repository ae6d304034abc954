package config

// Diff describes what changed between two configurations and whether the
// change can be applied to a running daemon. Only the log level is
// hot-reloadable; everything else re-wires subsystems and needs a restart.
type Diff struct {
	// LogLevelChanged reports that server.log_level changed; NewLogLevel
	// holds the value to apply.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartNeeded lists the config paths whose new values only take
	// effect after a daemon restart.
	RestartNeeded []string
}

// Changed reports whether the two configs differ at all.
func (d Diff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartNeeded) > 0
}

// Compare returns the difference between an old and a new configuration.
func Compare(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "server.listen_addr")
	}
	if old.Output.Module != new.Output.Module {
		d.RestartNeeded = append(d.RestartNeeded, "output.module")
	}
	if old.Output.EspeakNG != new.Output.EspeakNG {
		d.RestartNeeded = append(d.RestartNeeded, "output.espeakng")
	}
	if old.History != new.History {
		d.RestartNeeded = append(d.RestartNeeded, "history")
	}

	return d
}
