package materialize

import (
	"fmt"
	"strings"
)

// FetchType selects how many rows of a result set are pulled and where they go.
type FetchType int

const (
	// None pulls no rows.
	None FetchType = iota
	// FetchOne pulls the first row.
	FetchOne
	// Fetch pulls every row into memory.
	Fetch
	// Store streams every row into a stored result file.
	Store
)

var fetchTypeNames = map[FetchType]string{
	None:     "NONE",
	FetchOne: "FETCH_ONE",
	Fetch:    "FETCH",
	Store:    "STORE",
}

func (f FetchType) String() string {
	if name, ok := fetchTypeNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FetchType(%d)", int(f))
}

// ParseFetchType parses a fetch type name, ignoring case.
func ParseFetchType(name string) (FetchType, error) {
	for f, n := range fetchTypeNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return None, fmt.Errorf("invalid fetch type %q, expected one of NONE, FETCH_ONE, FETCH, STORE", name)
}

// Set implements flag.Value.
func (f *FetchType) Set(name string) error {
	parsed, err := ParseFetchType(name)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *FetchType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	return f.Set(name)
}

// MarshalYAML implements yaml.Marshaler.
func (f FetchType) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// Resolve returns the fetch type of a task. An explicit fetch type wins over
// the deprecated boolean flags, which rank store, then fetch one, then fetch.
func Resolve(explicit *FetchType, fetch, fetchOne, store bool) FetchType {
	switch {
	case explicit != nil:
		return *explicit
	case store:
		return Store
	case fetchOne:
		return FetchOne
	case fetch:
		return Fetch
	default:
		return None
	}
}
