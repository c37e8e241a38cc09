// Package sawcall implements frequency-domain detection of saw-call
// vocalization events in decoded audio.
package sawcall

// Parameters holds the threshold configuration for a detection run.
type Parameters struct {
	MinMagnitude    float64 // lower magnitude bound, exclusive
	MaxMagnitude    float64 // upper magnitude bound, exclusive
	MinFrequency    float64 // lower frequency bound in Hz, exclusive
	MaxFrequency    float64 // upper frequency bound in Hz, exclusive
	SegmentDuration float64 // STFT window length in seconds
	TimeThreshold   float64 // maximum gap in seconds between impulses of one event
	MinImpulseCount int     // minimum impulses for an event to survive filtering
}

// BuiltinDefaults is the hardcoded fallback parameter set, calibrated for
// Amur leopard recordings. It is used whenever no configured set can be
// resolved.
var BuiltinDefaults = Parameters{
	MinMagnitude:    3500,
	MaxMagnitude:    10000,
	MinFrequency:    15,
	MaxFrequency:    300,
	SegmentDuration: 0.1,
	TimeThreshold:   5,
	MinImpulseCount: 3,
}

// ParameterProvider is the lookup surface the resolver needs from storage.
type ParameterProvider interface {
	// ParametersBySpecies returns the parameter set configured for the given
	// species slug, or nil when none exists.
	ParametersBySpecies(slug string) (*Parameters, error)
	// DefaultParameters returns the parameter set marked as default, or nil
	// when none is marked.
	DefaultParameters() (*Parameters, error)
}

// ResolveParameters resolves the parameter set for a species through three
// tiers: species-specific, configured default, built-in constants. Lookup
// failures are swallowed; the resolver always returns a usable set and never
// panics.
func ResolveParameters(provider ParameterProvider, species string) Parameters {
	if provider == nil {
		return BuiltinDefaults
	}

	if species != "" {
		params, err := provider.ParametersBySpecies(species)
		if err != nil {
			getLogger().Debug("species parameter lookup failed, falling back",
				"species", species, "error", err)
		} else if params != nil {
			return *params
		}
	}

	params, err := provider.DefaultParameters()
	if err != nil {
		getLogger().Debug("default parameter lookup failed, using built-in defaults", "error", err)
		return BuiltinDefaults
	}
	if params != nil {
		return *params
	}

	return BuiltinDefaults
}
