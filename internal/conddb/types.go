package conddb

import (
	"fmt"
	"strings"
)

// TableType selects the backend a table is loaded from.
type TableType int

const (
	Generic TableType = iota
	Conditions
	Hardware
	UnstructuredConditions
)

var tableTypeNames = []string{"generic", "conditions", "hardware", "unstructuredConditions"}

func (t TableType) String() string {
	if int(t) < len(tableTypeNames) {
		return tableTypeNames[t]
	}
	return fmt.Sprintf("tableType(%d)", int(t))
}

// ParseTableType accepts the names printed by String, case-insensitively.
// An empty name is Generic.
func ParseTableType(name string) (TableType, error) {
	if name == "" {
		return Generic, nil
	}
	for i, n := range tableTypeNames {
		if strings.EqualFold(n, name) {
			return TableType(i), nil
		}
	}
	return Generic, fmt.Errorf("unknown table type %q", name)
}

// DataTypeMask restricts conditions queries to data and/or Monte Carlo rows.
type DataTypeMask uint8

const (
	DataTypeNone DataTypeMask = 0
	DataOnly     DataTypeMask = 1 << 0
	MCOnly       DataTypeMask = 1 << 1
)

// queryValue is the web service "type" parameter, empty when the mask does
// not select exactly one kind.
func (m DataTypeMask) queryValue() string {
	switch m {
	case DataOnly:
		return "data"
	case MCOnly:
		return "mc"
	default:
		return ""
	}
}

func (m DataTypeMask) String() string {
	switch m {
	case DataTypeNone:
		return "none"
	case DataOnly:
		return "data"
	case MCOnly:
		return "mc"
	case DataOnly | MCOnly:
		return "data|mc"
	default:
		return fmt.Sprintf("mask(%d)", uint8(m))
	}
}

// ParseDataTypeMask accepts "", "none", "data", "mc" and "data|mc".
func ParseDataTypeMask(s string) (DataTypeMask, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return DataTypeNone, nil
	case "data":
		return DataOnly, nil
	case "mc":
		return MCOnly, nil
	case "data|mc", "mc|data", "both":
		return DataOnly | MCOnly, nil
	}
	return DataTypeNone, fmt.Errorf("unknown data type %q", s)
}
