package core

// OperationCode identifies the kind of a chain operation. It is the first
// byte of every encoded record.
//
// Assigned byte values are part of the wire format and must never change.
// New kinds get new codes.
type OperationCode byte

const (
	// OpPut unconditionally sets the value for a key.
	OpPut OperationCode = 0x01
	// OpRemove unconditionally deletes a key.
	OpRemove OperationCode = 0x02
	// OpPutIfAbsent sets the value only when no entry exists.
	OpPutIfAbsent OperationCode = 0x03
	// OpReplace sets the value only when an entry exists.
	OpReplace OperationCode = 0x04
	// OpConditionalReplace sets the value only when the current value equals the expected one.
	OpConditionalReplace OperationCode = 0x05
	// OpConditionalRemove deletes the key only when the current value equals the expected one.
	OpConditionalRemove OperationCode = 0x06

	// timestampedFlag marks the timestamped counterpart of a base code.
	timestampedFlag OperationCode = 0x10

	OpTimestampedPut                = OpPut | timestampedFlag
	OpTimestampedRemove             = OpRemove | timestampedFlag
	OpTimestampedPutIfAbsent        = OpPutIfAbsent | timestampedFlag
	OpTimestampedReplace            = OpReplace | timestampedFlag
	OpTimestampedConditionalReplace = OpConditionalReplace | timestampedFlag
	OpTimestampedConditionalRemove  = OpConditionalRemove | timestampedFlag
)

var operationNames = map[OperationCode]string{
	OpPut:                           "Put",
	OpRemove:                        "Remove",
	OpPutIfAbsent:                   "PutIfAbsent",
	OpReplace:                       "Replace",
	OpConditionalReplace:            "ConditionalReplace",
	OpConditionalRemove:             "ConditionalRemove",
	OpTimestampedPut:                "TimestampedPut",
	OpTimestampedRemove:             "TimestampedRemove",
	OpTimestampedPutIfAbsent:        "TimestampedPutIfAbsent",
	OpTimestampedReplace:            "TimestampedReplace",
	OpTimestampedConditionalReplace: "TimestampedConditionalReplace",
	OpTimestampedConditionalRemove:  "TimestampedConditionalRemove",
}

// Codes returns every known operation code in ascending byte order.
func Codes() []OperationCode {
	return []OperationCode{
		OpPut, OpRemove, OpPutIfAbsent, OpReplace, OpConditionalReplace, OpConditionalRemove,
		OpTimestampedPut, OpTimestampedRemove, OpTimestampedPutIfAbsent, OpTimestampedReplace,
		OpTimestampedConditionalReplace, OpTimestampedConditionalRemove,
	}
}

// CodeFor returns the wire byte for an operation code.
func CodeFor(code OperationCode) byte {
	return byte(code)
}

// KindFor maps a wire byte back to its operation code. Unknown bytes are an
// error, never a default.
func KindFor(b byte) (OperationCode, error) {
	code := OperationCode(b)
	if _, ok := operationNames[code]; !ok {
		return 0, &UnknownOperationCodeError{Code: b}
	}
	return code, nil
}

// Valid reports whether the code is present in the table.
func (c OperationCode) Valid() bool {
	_, ok := operationNames[c]
	return ok
}

// String returns the stable name of the operation code.
func (c OperationCode) String() string {
	if name, ok := operationNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Timestamped reports whether records of this kind carry an 8-byte timestamp.
func (c OperationCode) Timestamped() bool {
	return c&timestampedFlag != 0
}

// Untimestamped returns the base kind of a timestamped code.
func (c OperationCode) Untimestamped() OperationCode {
	return c &^ timestampedFlag
}

// WithTimestamp returns the timestamped counterpart of a base code.
func (c OperationCode) WithTimestamp() OperationCode {
	return c | timestampedFlag
}

// CarriesValue reports whether the record ends with a value payload.
func (c OperationCode) CarriesValue() bool {
	switch c.Untimestamped() {
	case OpPut, OpPutIfAbsent, OpReplace, OpConditionalReplace:
		return true
	default:
		return false
	}
}

// CarriesExpected reports whether the record holds a length-prefixed expected value.
func (c OperationCode) CarriesExpected() bool {
	switch c.Untimestamped() {
	case OpConditionalReplace, OpConditionalRemove:
		return true
	default:
		return false
	}
}
