// Package function implements the two-byte FunctionCode table: register
// access, hashing, block/transaction queries, and payment primitives,
// called via the opcode package's EXT_FUN family. Every call passes a
// preflight check of its declared parameter count and return expectation
// before dispatch.
//
// Several behaviors here are consensus-locked: deployed ATs depend on the
// exact hash digest word-layout (RMD160/HASH160 right-align the last 4
// digest bytes into B3's high 32 bits with B4 zero) and on the
// UNSIGNED/SIGNED_COMPARE_A_WITH_B cascade comparing a3/a4 against
// themselves. Correcting either would change post-round state under every
// validator.
package function

import (
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/host"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvmlog"
)

// Code is a two-byte function code.
type Code uint16

const (
	ECHO Code = 0x0001

	GET_A1 Code = 0x0100
	GET_A2 Code = 0x0101
	GET_A3 Code = 0x0102
	GET_A4 Code = 0x0103
	GET_B1 Code = 0x0104
	GET_B2 Code = 0x0105
	GET_B3 Code = 0x0106
	GET_B4 Code = 0x0107

	GET_A_IND Code = 0x0108
	GET_B_IND Code = 0x0109
	GET_A_DAT Code = 0x010A
	GET_B_DAT Code = 0x010B

	SET_A1    Code = 0x0110
	SET_A2    Code = 0x0111
	SET_A3    Code = 0x0112
	SET_A4    Code = 0x0113
	SET_A1_A2 Code = 0x0114
	SET_A3_A4 Code = 0x0115

	SET_B1    Code = 0x0116
	SET_B2    Code = 0x0117
	SET_B3    Code = 0x0118
	SET_B4    Code = 0x0119
	SET_B1_B2 Code = 0x011A
	SET_B3_B4 Code = 0x011B

	SET_A_IND Code = 0x011C
	SET_B_IND Code = 0x011D
	SET_A_DAT Code = 0x011E
	SET_B_DAT Code = 0x011F

	CLEAR_A          Code = 0x0120
	CLEAR_B          Code = 0x0121
	CLEAR_A_AND_B    Code = 0x0122
	COPY_A_FROM_B    Code = 0x0123
	COPY_B_FROM_A    Code = 0x0124
	CHECK_A_IS_ZERO  Code = 0x0125
	CHECK_B_IS_ZERO  Code = 0x0126
	CHECK_A_EQUALS_B Code = 0x0127
	SWAP_A_AND_B     Code = 0x0128

	OR_A_WITH_B  Code = 0x0129
	OR_B_WITH_A  Code = 0x012A
	AND_A_WITH_B Code = 0x012B
	AND_B_WITH_A Code = 0x012C
	XOR_A_WITH_B Code = 0x012D
	XOR_B_WITH_A Code = 0x012E

	// 0x012F is unassigned.
	UNSIGNED_COMPARE_A_WITH_B Code = 0x0130
	SIGNED_COMPARE_A_WITH_B   Code = 0x0131

	MD5_INTO_B         Code = 0x0200
	CHECK_MD5_WITH_B   Code = 0x0201
	RMD160_INTO_B      Code = 0x0202
	CHECK_RMD160_WITH_B Code = 0x0203
	SHA256_INTO_B      Code = 0x0204
	CHECK_SHA256_WITH_B Code = 0x0205
	HASH160_INTO_B     Code = 0x0206
	CHECK_HASH160_WITH_B Code = 0x0207

	GET_BLOCK_TIMESTAMP             Code = 0x0300
	GET_CREATION_TIMESTAMP          Code = 0x0301
	GET_PREVIOUS_BLOCK_TIMESTAMP    Code = 0x0302
	PUT_PREVIOUS_BLOCK_HASH_INTO_A  Code = 0x0303
	PUT_TX_AFTER_TIMESTAMP_INTO_A   Code = 0x0304
	GET_TYPE_FROM_TX_IN_A           Code = 0x0305
	GET_AMOUNT_FROM_TX_IN_A         Code = 0x0306
	GET_TIMESTAMP_FROM_TX_IN_A      Code = 0x0307
	GENERATE_RANDOM_USING_TX_IN_A   Code = 0x0308
	PUT_MESSAGE_FROM_TX_IN_A_INTO_B Code = 0x0309
	PUT_ADDRESS_FROM_TX_IN_A_INTO_B Code = 0x030A
	PUT_CREATOR_INTO_B              Code = 0x030B

	GET_CURRENT_BALANCE          Code = 0x0400
	GET_PREVIOUS_BALANCE         Code = 0x0401
	PAY_TO_ADDRESS_IN_B          Code = 0x0402
	PAY_ALL_TO_ADDRESS_IN_B      Code = 0x0403
	PAY_PREVIOUS_TO_ADDRESS_IN_B Code = 0x0404
	MESSAGE_A_TO_ADDRESS_IN_B    Code = 0x0405
	ADD_MINUTES_TO_TIMESTAMP     Code = 0x0406

	platformPassthroughLow  = 0x0500
	platformPassthroughHigh = 0x06FF
)

// Descriptor is the static (paramCount, returnsValue) shape of a function.
type Descriptor struct {
	Code         Code
	Mnemonic     string
	ParamCount   int
	ReturnsValue bool
}

var table = map[Code]Descriptor{
	ECHO: {ECHO, "ECHO", 1, false},

	GET_A1: {GET_A1, "GET_A1", 0, true},
	GET_A2: {GET_A2, "GET_A2", 0, true},
	GET_A3: {GET_A3, "GET_A3", 0, true},
	GET_A4: {GET_A4, "GET_A4", 0, true},
	GET_B1: {GET_B1, "GET_B1", 0, true},
	GET_B2: {GET_B2, "GET_B2", 0, true},
	GET_B3: {GET_B3, "GET_B3", 0, true},
	GET_B4: {GET_B4, "GET_B4", 0, true},

	GET_A_IND: {GET_A_IND, "GET_A_IND", 1, false},
	GET_B_IND: {GET_B_IND, "GET_B_IND", 1, false},
	GET_A_DAT: {GET_A_DAT, "GET_A_DAT", 1, false},
	GET_B_DAT: {GET_B_DAT, "GET_B_DAT", 1, false},

	SET_A1:    {SET_A1, "SET_A1", 1, false},
	SET_A2:    {SET_A2, "SET_A2", 1, false},
	SET_A3:    {SET_A3, "SET_A3", 1, false},
	SET_A4:    {SET_A4, "SET_A4", 1, false},
	SET_A1_A2: {SET_A1_A2, "SET_A1_A2", 2, false},
	SET_A3_A4: {SET_A3_A4, "SET_A3_A4", 2, false},

	SET_B1:    {SET_B1, "SET_B1", 1, false},
	SET_B2:    {SET_B2, "SET_B2", 1, false},
	SET_B3:    {SET_B3, "SET_B3", 1, false},
	SET_B4:    {SET_B4, "SET_B4", 1, false},
	SET_B1_B2: {SET_B1_B2, "SET_B1_B2", 2, false},
	SET_B3_B4: {SET_B3_B4, "SET_B3_B4", 2, false},

	SET_A_IND: {SET_A_IND, "SET_A_IND", 1, false},
	SET_B_IND: {SET_B_IND, "SET_B_IND", 1, false},
	SET_A_DAT: {SET_A_DAT, "SET_A_DAT", 1, false},
	SET_B_DAT: {SET_B_DAT, "SET_B_DAT", 1, false},

	CLEAR_A:          {CLEAR_A, "CLEAR_A", 0, false},
	CLEAR_B:          {CLEAR_B, "CLEAR_B", 0, false},
	CLEAR_A_AND_B:    {CLEAR_A_AND_B, "CLEAR_A_AND_B", 0, false},
	COPY_A_FROM_B:    {COPY_A_FROM_B, "COPY_A_FROM_B", 0, false},
	COPY_B_FROM_A:    {COPY_B_FROM_A, "COPY_B_FROM_A", 0, false},
	CHECK_A_IS_ZERO:  {CHECK_A_IS_ZERO, "CHECK_A_IS_ZERO", 0, true},
	CHECK_B_IS_ZERO:  {CHECK_B_IS_ZERO, "CHECK_B_IS_ZERO", 0, true},
	CHECK_A_EQUALS_B: {CHECK_A_EQUALS_B, "CHECK_A_EQUALS_B", 0, true},
	SWAP_A_AND_B:     {SWAP_A_AND_B, "SWAP_A_AND_B", 0, false},

	OR_A_WITH_B:  {OR_A_WITH_B, "OR_A_WITH_B", 0, false},
	OR_B_WITH_A:  {OR_B_WITH_A, "OR_B_WITH_A", 0, false},
	AND_A_WITH_B: {AND_A_WITH_B, "AND_A_WITH_B", 0, false},
	AND_B_WITH_A: {AND_B_WITH_A, "AND_B_WITH_A", 0, false},
	XOR_A_WITH_B: {XOR_A_WITH_B, "XOR_A_WITH_B", 0, false},
	XOR_B_WITH_A: {XOR_B_WITH_A, "XOR_B_WITH_A", 0, false},

	UNSIGNED_COMPARE_A_WITH_B: {UNSIGNED_COMPARE_A_WITH_B, "UNSIGNED_COMPARE_A_WITH_B", 0, true},
	SIGNED_COMPARE_A_WITH_B:   {SIGNED_COMPARE_A_WITH_B, "SIGNED_COMPARE_A_WITH_B", 0, true},

	MD5_INTO_B:           {MD5_INTO_B, "MD5_INTO_B", 2, false},
	CHECK_MD5_WITH_B:     {CHECK_MD5_WITH_B, "CHECK_MD5_WITH_B", 2, true},
	RMD160_INTO_B:        {RMD160_INTO_B, "RMD160_INTO_B", 2, false},
	CHECK_RMD160_WITH_B:  {CHECK_RMD160_WITH_B, "CHECK_RMD160_WITH_B", 2, true},
	SHA256_INTO_B:        {SHA256_INTO_B, "SHA256_INTO_B", 2, false},
	CHECK_SHA256_WITH_B:  {CHECK_SHA256_WITH_B, "CHECK_SHA256_WITH_B", 2, true},
	HASH160_INTO_B:       {HASH160_INTO_B, "HASH160_INTO_B", 2, false},
	CHECK_HASH160_WITH_B: {CHECK_HASH160_WITH_B, "CHECK_HASH160_WITH_B", 2, true},

	GET_BLOCK_TIMESTAMP:             {GET_BLOCK_TIMESTAMP, "GET_BLOCK_TIMESTAMP", 0, true},
	GET_CREATION_TIMESTAMP:          {GET_CREATION_TIMESTAMP, "GET_CREATION_TIMESTAMP", 0, true},
	GET_PREVIOUS_BLOCK_TIMESTAMP:    {GET_PREVIOUS_BLOCK_TIMESTAMP, "GET_PREVIOUS_BLOCK_TIMESTAMP", 0, true},
	PUT_PREVIOUS_BLOCK_HASH_INTO_A:  {PUT_PREVIOUS_BLOCK_HASH_INTO_A, "PUT_PREVIOUS_BLOCK_HASH_INTO_A", 0, false},
	PUT_TX_AFTER_TIMESTAMP_INTO_A:   {PUT_TX_AFTER_TIMESTAMP_INTO_A, "PUT_TX_AFTER_TIMESTAMP_INTO_A", 1, false},
	GET_TYPE_FROM_TX_IN_A:           {GET_TYPE_FROM_TX_IN_A, "GET_TYPE_FROM_TX_IN_A", 0, true},
	GET_AMOUNT_FROM_TX_IN_A:         {GET_AMOUNT_FROM_TX_IN_A, "GET_AMOUNT_FROM_TX_IN_A", 0, true},
	GET_TIMESTAMP_FROM_TX_IN_A:      {GET_TIMESTAMP_FROM_TX_IN_A, "GET_TIMESTAMP_FROM_TX_IN_A", 0, true},
	GENERATE_RANDOM_USING_TX_IN_A:   {GENERATE_RANDOM_USING_TX_IN_A, "GENERATE_RANDOM_USING_TX_IN_A", 0, true},
	PUT_MESSAGE_FROM_TX_IN_A_INTO_B: {PUT_MESSAGE_FROM_TX_IN_A_INTO_B, "PUT_MESSAGE_FROM_TX_IN_A_INTO_B", 0, false},
	PUT_ADDRESS_FROM_TX_IN_A_INTO_B: {PUT_ADDRESS_FROM_TX_IN_A_INTO_B, "PUT_ADDRESS_FROM_TX_IN_A_INTO_B", 0, false},
	PUT_CREATOR_INTO_B:              {PUT_CREATOR_INTO_B, "PUT_CREATOR_INTO_B", 0, false},

	GET_CURRENT_BALANCE:          {GET_CURRENT_BALANCE, "GET_CURRENT_BALANCE", 0, true},
	GET_PREVIOUS_BALANCE:         {GET_PREVIOUS_BALANCE, "GET_PREVIOUS_BALANCE", 0, true},
	PAY_TO_ADDRESS_IN_B:          {PAY_TO_ADDRESS_IN_B, "PAY_TO_ADDRESS_IN_B", 1, false},
	PAY_ALL_TO_ADDRESS_IN_B:      {PAY_ALL_TO_ADDRESS_IN_B, "PAY_ALL_TO_ADDRESS_IN_B", 0, false},
	PAY_PREVIOUS_TO_ADDRESS_IN_B: {PAY_PREVIOUS_TO_ADDRESS_IN_B, "PAY_PREVIOUS_TO_ADDRESS_IN_B", 0, false},
	MESSAGE_A_TO_ADDRESS_IN_B:    {MESSAGE_A_TO_ADDRESS_IN_B, "MESSAGE_A_TO_ADDRESS_IN_B", 0, false},
	ADD_MINUTES_TO_TIMESTAMP:     {ADD_MINUTES_TO_TIMESTAMP, "ADD_MINUTES_TO_TIMESTAMP", 2, true},
}

// Lookup returns the static descriptor for code, for callers (the
// disassembler) that only need the mnemonic/shape metadata without
// dispatching a call.
func Lookup(code Code) (Descriptor, bool) {
	d, ok := table[code]
	return d, ok
}

// IsPlatformPassthrough reports whether code falls in the 0x0500-0x06FF
// range dispatched straight to the host, skipping the paramCount/returnsValue
// preflight.
func IsPlatformPassthrough(code Code) bool {
	return code >= platformPassthroughLow && code <= platformPassthroughHigh
}

// Data carries the up-to-two resolved 64-bit parameter values a caller
// supplies to a function, already read from the data segment by the
// executor's operand decode.
type Data struct {
	Value1, Value2 int64
}

// Context bundles the machine, host API, and logger a function call needs.
type Context struct {
	M   *machine.Machine
	API host.API
	Log atvmlog.Logger
}

// Call dispatches a function code. suppliedParamCount/suppliedReturnsValue
// describe the calling opcode's shape (EXT_FUN vs EXT_FUN_DAT_2, plain vs
// _RET); they must match the function's own declared shape except for the
// platform passthrough range, which skips the check entirely.
func Call(code Code, suppliedParamCount int, suppliedReturnsValue bool, fd Data, ctx *Context) (int64, error) {
	if IsPlatformPassthrough(code) {
		return ctx.API.PlatformSpecificPostCheckExecute(fd.Value1, fd.Value2, ctx.M, uint16(code))
	}

	d, ok := table[code]
	if !ok {
		return 0, atverrors.ErrIllegalOperation
	}
	if d.ParamCount != suppliedParamCount || d.ReturnsValue != suppliedReturnsValue {
		return 0, atverrors.ErrIllegalOperation
	}

	return dispatch(code, fd, ctx)
}
