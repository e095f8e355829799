package function

import "github.com/ciyamat/atvm/pkg/atvm/machine"

// storeRegisterIntoData writes the four words of reg into four consecutive
// data cells starting at addr — the direction GET_A_DAT/GET_A_IND take
// (despite the "GET" name, they copy the register OUT to the data segment).
func storeRegisterIntoData(m *machine.Machine, reg [4]uint64, addr int64) error {
	buf, err := m.DataRange(addr, 4)
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		v := reg[i]
		for k := 0; k < 8; k++ {
			buf[i*8+k] = byte(v)
			v >>= 8
		}
	}
	return nil
}

// loadDataIntoRegister reads four consecutive data cells starting at addr
// into reg — the direction SET_A_DAT/SET_A_IND take.
func loadDataIntoRegister(m *machine.Machine, reg *[4]uint64, addr int64) error {
	buf, err := m.DataRange(addr, 4)
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		var v uint64
		for k := 7; k >= 0; k-- {
			v = v<<8 | uint64(buf[i*8+k])
		}
		reg[i] = v
	}
	return nil
}
