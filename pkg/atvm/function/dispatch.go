package function

import "github.com/ciyamat/atvm/pkg/atvm/atverrors"

func dispatch(code Code, fd Data, ctx *Context) (int64, error) {
	m := ctx.M
	switch code {
	case ECHO:
		ctx.Log.Echo(fd.Value1)
		return 0, nil

	case GET_A1:
		return int64(m.A[0]), nil
	case GET_A2:
		return int64(m.A[1]), nil
	case GET_A3:
		return int64(m.A[2]), nil
	case GET_A4:
		return int64(m.A[3]), nil
	case GET_B1:
		return int64(m.B[0]), nil
	case GET_B2:
		return int64(m.B[1]), nil
	case GET_B3:
		return int64(m.B[2]), nil
	case GET_B4:
		return int64(m.B[3]), nil

	case GET_A_DAT:
		return 0, storeRegisterIntoData(m, m.A, fd.Value1)
	case GET_B_DAT:
		return 0, storeRegisterIntoData(m, m.B, fd.Value1)
	case GET_A_IND:
		addr, err := indirectAddr(m, fd.Value1)
		if err != nil {
			return 0, err
		}
		return 0, storeRegisterIntoData(m, m.A, addr)
	case GET_B_IND:
		addr, err := indirectAddr(m, fd.Value1)
		if err != nil {
			return 0, err
		}
		return 0, storeRegisterIntoData(m, m.B, addr)

	case SET_A1:
		m.A[0] = uint64(fd.Value1)
		return 0, nil
	case SET_A2:
		m.A[1] = uint64(fd.Value1)
		return 0, nil
	case SET_A3:
		m.A[2] = uint64(fd.Value1)
		return 0, nil
	case SET_A4:
		m.A[3] = uint64(fd.Value1)
		return 0, nil
	case SET_A1_A2:
		m.A[0] = uint64(fd.Value1)
		m.A[1] = uint64(fd.Value2)
		return 0, nil
	case SET_A3_A4:
		m.A[2] = uint64(fd.Value1)
		m.A[3] = uint64(fd.Value2)
		return 0, nil
	case SET_A_DAT:
		return 0, loadDataIntoRegister(m, &m.A, fd.Value1)
	case SET_A_IND:
		addr, err := indirectAddr(m, fd.Value1)
		if err != nil {
			return 0, err
		}
		return 0, loadDataIntoRegister(m, &m.A, addr)

	case SET_B1:
		m.B[0] = uint64(fd.Value1)
		return 0, nil
	case SET_B2:
		m.B[1] = uint64(fd.Value1)
		return 0, nil
	case SET_B3:
		m.B[2] = uint64(fd.Value1)
		return 0, nil
	case SET_B4:
		m.B[3] = uint64(fd.Value1)
		return 0, nil
	case SET_B1_B2:
		m.B[0] = uint64(fd.Value1)
		m.B[1] = uint64(fd.Value2)
		return 0, nil
	case SET_B3_B4:
		m.B[2] = uint64(fd.Value1)
		m.B[3] = uint64(fd.Value2)
		return 0, nil
	case SET_B_DAT:
		return 0, loadDataIntoRegister(m, &m.B, fd.Value1)
	case SET_B_IND:
		addr, err := indirectAddr(m, fd.Value1)
		if err != nil {
			return 0, err
		}
		return 0, loadDataIntoRegister(m, &m.B, addr)

	case CLEAR_A:
		m.A = [4]uint64{}
		return 0, nil
	case CLEAR_B:
		m.B = [4]uint64{}
		return 0, nil
	case CLEAR_A_AND_B:
		m.A = [4]uint64{}
		m.B = [4]uint64{}
		return 0, nil
	case COPY_A_FROM_B:
		m.A = m.B
		return 0, nil
	case COPY_B_FROM_A:
		m.B = m.A
		return 0, nil
	case SWAP_A_AND_B:
		m.A, m.B = m.B, m.A
		return 0, nil
	case OR_A_WITH_B:
		for i := range m.A {
			m.A[i] |= m.B[i]
		}
		return 0, nil
	case OR_B_WITH_A:
		for i := range m.B {
			m.B[i] |= m.A[i]
		}
		return 0, nil
	case AND_A_WITH_B:
		for i := range m.A {
			m.A[i] &= m.B[i]
		}
		return 0, nil
	case AND_B_WITH_A:
		for i := range m.B {
			m.B[i] &= m.A[i]
		}
		return 0, nil
	case XOR_A_WITH_B:
		for i := range m.A {
			m.A[i] ^= m.B[i]
		}
		return 0, nil
	case XOR_B_WITH_A:
		for i := range m.B {
			m.B[i] ^= m.A[i]
		}
		return 0, nil
	case CHECK_A_IS_ZERO:
		return boolInt(m.ZeroA()), nil
	case CHECK_B_IS_ZERO:
		return boolInt(m.ZeroB()), nil
	case CHECK_A_EQUALS_B:
		return boolInt(m.A == m.B), nil
	case UNSIGNED_COMPARE_A_WITH_B:
		return unsignedCompareCascade(m.A, m.B), nil
	case SIGNED_COMPARE_A_WITH_B:
		return signedCompareCascade(m.A, m.B), nil

	case MD5_INTO_B:
		return 0, hashIntoB(m, fd, hashMD5)
	case CHECK_MD5_WITH_B:
		return checkHashWithB(m, fd, hashMD5, false)
	case RMD160_INTO_B:
		return 0, hashIntoB(m, fd, hashRMD160)
	case CHECK_RMD160_WITH_B:
		return checkHashWithB(m, fd, hashRMD160, true)
	case SHA256_INTO_B:
		return 0, hashIntoB(m, fd, hashSHA256)
	case CHECK_SHA256_WITH_B:
		return checkHashWithB(m, fd, hashSHA256, false)
	case HASH160_INTO_B:
		return 0, hashIntoB(m, fd, hashHASH160)
	case CHECK_HASH160_WITH_B:
		return checkHashWithB(m, fd, hashHASH160, true)

	case GET_BLOCK_TIMESTAMP:
		return int64(uint64(ctx.API.CurrentBlockHeight()) << 32), nil
	case GET_CREATION_TIMESTAMP:
		return int64(uint64(ctx.API.CreationBlockHeight(m)) << 32), nil
	case GET_PREVIOUS_BLOCK_TIMESTAMP:
		return int64(uint64(ctx.API.PreviousBlockHeight()) << 32), nil
	case PUT_PREVIOUS_BLOCK_HASH_INTO_A:
		ctx.API.PutPreviousBlockHashIntoA(m)
		return 0, nil
	case PUT_TX_AFTER_TIMESTAMP_INTO_A:
		ctx.API.PutTransactionAfterTimestampIntoA(uint64(fd.Value1), m)
		return 0, nil
	case GET_TYPE_FROM_TX_IN_A:
		return ctx.API.TypeFromTxInA(m), nil
	case GET_AMOUNT_FROM_TX_IN_A:
		return ctx.API.AmountFromTxInA(m), nil
	case GET_TIMESTAMP_FROM_TX_IN_A:
		return ctx.API.TimestampFromTxInA(m), nil
	case GENERATE_RANDOM_USING_TX_IN_A:
		// The PC rewind-on-defer this function may trigger is handled by
		// the caller (exec.executeOpcode's EXT_FUN_RET case), which alone
		// knows the instruction's start address; this dispatch only fills
		// in a default wake height when the host deferred without naming
		// one.
		wasSleeping := m.IsSleeping
		result := ctx.API.GenerateRandomUsingTxInA(m)
		if !wasSleeping && m.IsSleeping && m.SleepUntilHeight == nil {
			h := int32(ctx.API.CurrentBlockHeight()) + 1
			m.SleepUntilHeight = &h
		}
		return result, nil
	case PUT_MESSAGE_FROM_TX_IN_A_INTO_B:
		ctx.API.PutMessageFromTxInAIntoB(m)
		return 0, nil
	case PUT_ADDRESS_FROM_TX_IN_A_INTO_B:
		ctx.API.PutAddressFromTxInAIntoB(m)
		return 0, nil
	case PUT_CREATOR_INTO_B:
		ctx.API.PutCreatorIntoB(m)
		return 0, nil

	case GET_CURRENT_BALANCE:
		return int64(m.CurrentBalance), nil
	case GET_PREVIOUS_BALANCE:
		return int64(m.PreviousBalance), nil
	case PAY_TO_ADDRESS_IN_B:
		amount := uint64(fd.Value1)
		if amount > m.CurrentBalance {
			amount = m.CurrentBalance
		}
		ctx.API.PayAmountToB(amount, m)
		m.CurrentBalance -= amount
		if m.CurrentBalance == 0 {
			m.IsFinished = true
		}
		return 0, nil
	case PAY_ALL_TO_ADDRESS_IN_B:
		ctx.API.PayAmountToB(m.CurrentBalance, m)
		m.CurrentBalance = 0
		m.IsFinished = true
		return 0, nil
	case PAY_PREVIOUS_TO_ADDRESS_IN_B:
		amount := m.PreviousBalance
		if amount > m.CurrentBalance {
			amount = m.CurrentBalance
		}
		ctx.API.PayAmountToB(amount, m)
		m.CurrentBalance -= amount
		if m.CurrentBalance == 0 {
			m.IsFinished = true
		}
		return 0, nil
	case MESSAGE_A_TO_ADDRESS_IN_B:
		ctx.API.MessageAToB(m)
		return 0, nil
	case ADD_MINUTES_TO_TIMESTAMP:
		return ctx.API.AddMinutesToTimestamp(uint64(fd.Value1), uint32(fd.Value2)), nil
	}

	return 0, atverrors.ErrIllegalOperation
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// indirectAddr resolves a pointer: the value at data cell `ptr` names the
// real address, matching GET_A_IND/SET_A_IND's "$N" indirection.
func indirectAddr(m interface {
	DataCell(int64) (uint64, error)
}, ptr int64) (int64, error) {
	v, err := m.DataCell(ptr)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// unsignedCompareCascade and signedCompareCascade intentionally compare
// a3/a4 against themselves rather than b3/b4, so only the first two words
// ever decide the result. Deployed ATs depend on this exact cascade;
// correcting it would change consensus.
func unsignedCompareCascade(a, b [4]uint64) int64 {
	if c := compareUnsigned(a[0], b[0]); c != 0 {
		return c
	}
	if c := compareUnsigned(a[1], b[1]); c != 0 {
		return c
	}
	if c := compareUnsigned(a[2], a[2]); c != 0 {
		return c
	}
	return compareUnsigned(a[3], a[3])
}

func signedCompareCascade(a, b [4]uint64) int64 {
	if c := compareSigned(a[0], b[0]); c != 0 {
		return c
	}
	if c := compareSigned(a[1], b[1]); c != 0 {
		return c
	}
	if c := compareSigned(a[2], a[2]); c != 0 {
		return c
	}
	return compareSigned(a[3], a[3])
}

func compareUnsigned(a, b uint64) int64 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareSigned(a, b uint64) int64 {
	sa, sb := int64(a), int64(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
