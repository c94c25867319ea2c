package cql

import (
	"fmt"
	"strings"

	"github.com/gocql/gocql"
)

// protoVersion is used when a type descriptor has to be rebuilt from its name,
// e.g. when a stored result file is read back.
const protoVersion = 4

// Column describes one column of a result set.
type Column struct {
	Name string
	Type gocql.TypeInfo
}

// Columns converts the driver's column metadata, keeping result-set order.
func Columns(infos []gocql.ColumnInfo) []Column {
	columns := make([]Column, 0, len(infos))
	for _, info := range infos {
		columns = append(columns, Column{Name: info.Name, Type: info.TypeInfo})
	}
	return columns
}

var typeNames = map[gocql.Type]string{
	gocql.TypeCustom:    "custom",
	gocql.TypeAscii:     "ascii",
	gocql.TypeBigInt:    "bigint",
	gocql.TypeBlob:      "blob",
	gocql.TypeBoolean:   "boolean",
	gocql.TypeCounter:   "counter",
	gocql.TypeDecimal:   "decimal",
	gocql.TypeDouble:    "double",
	gocql.TypeFloat:     "float",
	gocql.TypeInt:       "int",
	gocql.TypeText:      "text",
	gocql.TypeTimestamp: "timestamp",
	gocql.TypeUUID:      "uuid",
	gocql.TypeVarchar:   "varchar",
	gocql.TypeVarint:    "varint",
	gocql.TypeTimeUUID:  "timeuuid",
	gocql.TypeInet:      "inet",
	gocql.TypeDate:      "date",
	gocql.TypeTime:      "time",
	gocql.TypeSmallInt:  "smallint",
	gocql.TypeTinyInt:   "tinyint",
	gocql.TypeDuration:  "duration",
	gocql.TypeList:      "list",
	gocql.TypeMap:       "map",
	gocql.TypeSet:       "set",
	gocql.TypeUDT:       "udt",
	gocql.TypeTuple:     "tuple",
}

var typeCodes = func() map[string]gocql.Type {
	codes := make(map[string]gocql.Type, len(typeNames))
	for code, name := range typeNames {
		codes[name] = code
	}
	return codes
}()

// TypeName returns the CQL name of a protocol type code.
func TypeName(t gocql.Type) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%04x)", int(t))
}

// TypeString returns the full type of info, including the element types of
// collections and tuples, e.g. map<text,list<int>>.
func TypeString(info gocql.TypeInfo) string {
	switch t := info.(type) {
	case gocql.CollectionType:
		if t.Type() == gocql.TypeMap && t.Key != nil && t.Elem != nil {
			return fmt.Sprintf("map<%s,%s>", TypeString(t.Key), TypeString(t.Elem))
		}
		if t.Type() != gocql.TypeMap && t.Elem != nil {
			return fmt.Sprintf("%s<%s>", TypeName(t.Type()), TypeString(t.Elem))
		}
	case gocql.TupleTypeInfo:
		if len(t.Elems) > 0 {
			elems := make([]string, len(t.Elems))
			for i, elem := range t.Elems {
				elems[i] = TypeString(elem)
			}
			return "tuple<" + strings.Join(elems, ",") + ">"
		}
	}
	return TypeName(info.Type())
}

// ParseType rebuilds a type descriptor from a name returned by TypeString.
// A bare collection name such as "list" yields a type without element types.
func ParseType(name string) (gocql.TypeInfo, error) {
	info, rest, err := parseType(name)
	if err != nil {
		return nil, err
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return nil, fmt.Errorf("unexpected %q after CQL type in %q", rest, name)
	}
	return info, nil
}

func parseType(s string) (gocql.TypeInfo, string, error) {
	s = strings.TrimLeft(s, " ")
	i := strings.IndexAny(s, "<,>")
	if i < 0 {
		i = len(s)
	}
	base, rest := strings.TrimSpace(s[:i]), strings.TrimLeft(s[i:], " ")
	code, ok := typeCodes[base]
	if !ok {
		return nil, "", fmt.Errorf("unknown CQL type %q", base)
	}
	native := gocql.NewNativeType(protoVersion, code, "")
	if !strings.HasPrefix(rest, "<") {
		return native, rest, nil
	}

	var params []gocql.TypeInfo
	rest = rest[1:]
	for {
		param, r, err := parseType(rest)
		if err != nil {
			return nil, "", err
		}
		params = append(params, param)
		r = strings.TrimLeft(r, " ")
		if strings.HasPrefix(r, ",") {
			rest = r[1:]
			continue
		}
		if !strings.HasPrefix(r, ">") {
			return nil, "", fmt.Errorf("unterminated type parameters of %s", base)
		}
		rest = r[1:]
		break
	}

	switch {
	case (code == gocql.TypeList || code == gocql.TypeSet) && len(params) == 1:
		return gocql.CollectionType{NativeType: native, Elem: params[0]}, rest, nil
	case code == gocql.TypeMap && len(params) == 2:
		return gocql.CollectionType{NativeType: native, Key: params[0], Elem: params[1]}, rest, nil
	case code == gocql.TypeTuple:
		return gocql.TupleTypeInfo{NativeType: native, Elems: params}, rest, nil
	}
	return nil, "", fmt.Errorf("%s does not take %d type parameters", base, len(params))
}

func describeType(info gocql.TypeInfo) string {
	if info == nil {
		return "<nil>"
	}
	switch t := info.(type) {
	case gocql.UDTTypeInfo:
		return fmt.Sprintf("udt %s.%s", t.KeySpace, t.Name)
	case *gocql.UDTTypeInfo:
		return fmt.Sprintf("udt %s.%s", t.KeySpace, t.Name)
	}
	if info.Type() == gocql.TypeCustom {
		return fmt.Sprintf("custom %s", info.Custom())
	}
	return TypeName(info.Type())
}
