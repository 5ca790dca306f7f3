package bridge

import (
	"github.com/apache/arrow-go/v18/arrow"
	aerrors "github.com/cryguy/adhesive/errors"
)

// returnMethods maps supported result types to the managed entry point that
// produces them.
var returnMethods = map[arrow.Type]string{
	arrow.INT64: "computeBigInt",
}

// MethodForReturnType returns the managed method computing a column of dt.
func MethodForReturnType(dt arrow.DataType) (string, error) {
	if dt == nil {
		return "", aerrors.New(aerrors.PhaseRegister, aerrors.KindUnsupportedType).
			Detail("return type is required").
			Build()
	}
	if m, ok := returnMethods[dt.ID()]; ok {
		return m, nil
	}
	return "", aerrors.New(aerrors.PhaseRegister, aerrors.KindUnsupportedType).
		Detail("return type %s is not supported", dt).
		Build()
}

// SupportedArgumentType reports whether the managed side can read columns
// of dt.
func SupportedArgumentType(dt arrow.DataType) bool {
	if dt == nil {
		return false
	}
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64,
		arrow.BOOL, arrow.STRING, arrow.LARGE_STRING:
		return true
	}
	return false
}
