// Package cfg loads configuration from flag defaults and a YAML file.
package cfg

import (
	"flag"
	"os"

	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Registerer declares the defaults of a configuration through flags.
type Registerer interface {
	RegisterFlags(*flag.FlagSet)
}

// Validator checks a fully loaded configuration.
type Validator interface {
	Validate() error
}

// Source is a generic configuration source. This function may do whatever is
// required to obtain the configuration. It is passed a pointer to the
// destination; the obtained configuration is written on top of the values
// set by previous sources.
type Source func(interface{}) error

// Unmarshal merges the values of the various configuration sources and sets them on
// `dst`.
func Unmarshal(dst interface{}, sources ...Source) error {
	if len(sources) == 0 {
		panic("No sources supplied to cfg.Unmarshal(). This is most likely a programming issue and should never happen. Check the code!")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}

// Defaults sets the flag defaults of dst, which must be a Registerer.
func Defaults() Source {
	return func(dst interface{}) error {
		r, ok := dst.(Registerer)
		if !ok {
			return errors.New("dst does not satisfy cfg.Registerer")
		}
		r.RegisterFlags(flag.NewFlagSet("defaults", flag.ContinueOnError))
		return nil
	}
}

// YAML reads the file at path and decodes it strictly. With expandEnv,
// ${VAR} and ${VAR:-default} references are replaced from the environment
// first.
func YAML(path string, expandEnv bool) Source {
	return func(dst interface{}) error {
		b, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "Error reading config file")
		}
		return decodeYAML(b, expandEnv, dst)
	}
}

// YAMLBytes decodes b like YAML does for a file.
func YAMLBytes(b []byte, expandEnv bool) Source {
	return func(dst interface{}) error {
		return decodeYAML(b, expandEnv, dst)
	}
}

func decodeYAML(b []byte, expandEnv bool, dst interface{}) error {
	if expandEnv {
		s, err := envsubst.EvalEnv(string(b))
		if err != nil {
			return errors.Wrap(err, "failed to expand env vars")
		}
		b = []byte(s)
	}
	return errors.Wrap(yaml.UnmarshalStrict(b, dst), "Error parsing config file")
}

// Validate checks dst when it is a Validator.
func Validate() Source {
	return func(dst interface{}) error {
		if v, ok := dst.(Validator); ok {
			return errors.Wrap(v.Validate(), "invalid configuration")
		}
		return nil
	}
}

// Load applies the flag defaults of dst, the YAML file at path when set,
// then validates the result.
func Load(dst Registerer, path string, expandEnv bool) error {
	sources := []Source{Defaults()}
	if path != "" {
		sources = append(sources, YAML(path, expandEnv))
	}
	sources = append(sources, Validate())
	return Unmarshal(dst, sources...)
}
