package module

import "autoreg/internal/platform/config"

// Options controls the registration module. Values may also be read from
// env; CLI-provided overrides win when non-zero (matching the teacher's
// module.Options merge convention).
type Options struct {
	SISBaseURL string
}

// FromConfig reads options using the REGISTRATION_ prefix.
func FromConfig(cfg config.Conf) Options {
	reg := cfg.Prefix("REGISTRATION_")
	return Options{
		SISBaseURL: reg.MayString("SIS_BASE_URL", ""),
	}
}
