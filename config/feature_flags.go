package config

import (
	"sort"
	"strconv"
	"strings"
)

// Feature flag names. Each can be overridden with FEATURE_<NAME>, dots
// replaced by underscores, e.g. FEATURE_GUIDANCE_AI=false.
const (
	FeatureTrackerRolloverWatch = "tracker.rollover_watch" // clear yesterday's tasks mid-session
	FeatureGuidanceAI           = "guidance.ai"            // ask the LLM about side effects
	FeatureNotifyRefillReminder = "notify.refill_reminder"
	FeatureNotifyLevelUp        = "notify.level_up"
)

// Feature is one toggle and what it controls.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// FeatureFlags is fixed after loading and safe to share.
type FeatureFlags struct {
	features map[string]Feature
}

var defaultFeatures = []Feature{
	{FeatureTrackerRolloverWatch, "Clear yesterday's tasks when the calendar day changes mid-session", true},
	{FeatureGuidanceAI, "Request AI guidance for logged side effects", true},
	{FeatureNotifyRefillReminder, "Remind the patient when the refill is due soon", true},
	{FeatureNotifyLevelUp, "Announce level ups and unlocked achievements", true},
}

// LoadFeatureFlags reads overrides from the environment only.
func LoadFeatureFlags() *FeatureFlags {
	return loadFeatureFlags(&source{file: map[string]string{}})
}

// loadFeatureFlags applies FEATURE_* overrides; unparsable values keep the
// default.
func loadFeatureFlags(src *source) *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]Feature, len(defaultFeatures))}
	for _, f := range defaultFeatures {
		if b, err := strconv.ParseBool(src.lookup(featureNameToEnvKey(f.Name))); err == nil {
			f.Enabled = b
		}
		ff.features[f.Name] = f
	}
	return ff
}

// "tracker.rollover_watch" -> "FEATURE_TRACKER_ROLLOVER_WATCH"
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled is false for unknown names.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	return ff.features[name].Enabled
}

// List returns every flag sorted by name.
func (ff *FeatureFlags) List() []Feature {
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
