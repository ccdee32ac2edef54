package recommender

import (
	"fmt"

	"github.com/localrivet/hybridrec/internal/errortypes"
)

// Options are the tunables of one recommendation request.
type Options struct {
	// KUse is the number of seed items taken from the semantic stage.
	KUse int `json:"k_use"`
	// KMF is the number of items each seed contributes from the collaborative stage.
	KMF int `json:"k_mf"`
	// NToRecommend caps the length of the final list.
	NToRecommend int `json:"n_to_recommend"`
	// UseBufferMultiplier over-fetches semantic candidates to survive the interaction filter.
	UseBufferMultiplier int `json:"use_buffer_multiplier"`
	// MFBufferMultiplier over-fetches collaborative neighbours to survive deduplication.
	MFBufferMultiplier int `json:"mf_buffer_multiplier"`
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		KUse:                2,
		KMF:                 5,
		NToRecommend:        5,
		UseBufferMultiplier: 10,
		MFBufferMultiplier:  10,
	}
}

// WithDefaults returns o with every zero field taken from def. Negative
// fields are kept so that Validate rejects them.
func (o Options) WithDefaults(def Options) Options {
	if o.KUse == 0 {
		o.KUse = def.KUse
	}
	if o.KMF == 0 {
		o.KMF = def.KMF
	}
	if o.NToRecommend == 0 {
		o.NToRecommend = def.NToRecommend
	}
	if o.UseBufferMultiplier == 0 {
		o.UseBufferMultiplier = def.UseBufferMultiplier
	}
	if o.MFBufferMultiplier == 0 {
		o.MFBufferMultiplier = def.MFBufferMultiplier
	}
	return o
}

// Validate reports an invalid configuration error naming the first
// non-positive field.
func (o Options) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"k_use", o.KUse},
		{"k_mf", o.KMF},
		{"n_to_recommend", o.NToRecommend},
		{"use_buffer_multiplier", o.UseBufferMultiplier},
		{"mf_buffer_multiplier", o.MFBufferMultiplier},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return errortypes.InvalidConfigurationError(
				fmt.Errorf("%s must be positive, got %d", f.name, f.value),
				"invalid recommendation options").WithField("option", f.name)
		}
	}
	return nil
}

// fetchSize returns k*multiplier clamped to n. The product saturates instead
// of overflowing, so arbitrarily large positive options behave like n.
func fetchSize(k, multiplier, n int) int {
	if k >= n || multiplier >= n || k > n/multiplier {
		return n
	}
	return k * multiplier
}
