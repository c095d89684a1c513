package config

import (
	"reflect"
	"sort"
	"strings"

	logx "eventpulse/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// structured attrs describing the new values for the reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		oldCfg.Scheduler.PreviewSize != newCfg.Scheduler.PreviewSize ||
		oldCfg.Scheduler.ListenerErrorIntervalOrDefault() != newCfg.Scheduler.ListenerErrorIntervalOrDefault() {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.preview_size", newCfg.Scheduler.PreviewSize),
			logx.Duration("scheduler.listener_error_interval", newCfg.Scheduler.ListenerErrorIntervalOrDefault()),
		)
	}

	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.driver", newCfg.Source.Driver),
			logx.String("source.path", newCfg.Source.Path),
			logx.String("source.refresh", newCfg.Source.Refresh),
			logx.Bool("source.watch", newCfg.Source.Watch),
		)
	}

	var oStore, nStore StorageConfig
	if oldCfg.Storage != nil {
		oStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nStore = *newCfg.Storage
	}
	if oStore != nStore {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nStore.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nStore.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nStore.BusyTimeout)),
		)
	}

	if oldCfg.Countdown.IntervalOrDefault() != newCfg.Countdown.IntervalOrDefault() ||
		!reflect.DeepEqual(normTargets(oldCfg.Countdown.Targets), normTargets(newCfg.Countdown.Targets)) {
		changed = append(changed, "countdown")
		attrs = append(attrs,
			logx.Duration("countdown.interval", newCfg.Countdown.IntervalOrDefault()),
			logx.Int("countdown.targets", len(newCfg.Countdown.Targets)),
		)
	}

	if oldCfg.Diagnostics != newCfg.Diagnostics {
		changed = append(changed, "diagnostics")
		attrs = append(attrs,
			logx.Bool("diagnostics.enabled", newCfg.Diagnostics.Enabled),
			logx.String("diagnostics.addr", newCfg.Diagnostics.Addr),
			logx.Bool("diagnostics.token_set", newCfg.Diagnostics.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func normTargets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
