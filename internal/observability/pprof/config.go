package pprof

import "tickd/internal/config"

// FromApp converts the daemon's validated config section, parsing the
// duration strings. Validation already ran, so errors here are rare.
func FromApp(c config.PprofConfig) (Config, error) {
	read, err := config.ParseDurationField("pprof.read_timeout", c.ReadTimeout)
	if err != nil {
		return Config{}, err
	}
	write, err := config.ParseDurationField("pprof.write_timeout", c.WriteTimeout)
	if err != nil {
		return Config{}, err
	}
	idle, err := config.ParseDurationField("pprof.idle_timeout", c.IdleTimeout)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Enabled:       c.Enabled,
		Addr:          c.Addr,
		Prefix:        c.Prefix,
		Token:         c.Token,
		AllowInsecure: c.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
