package function

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/ripemd160"

	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

// hashFunc computes a digest over data.
type hashFunc func(data []byte) []byte

func hashMD5(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

func hashSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func hashRMD160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// hashHASH160 is RIPEMD160(SHA256(x)).
func hashHASH160(data []byte) []byte {
	return hashRMD160(hashSHA256(data))
}

// hashIntoB computes fn over the data region named by (fd.Value1, fd.Value2)
// — a start cell index and a byte length, matching getHashData's bounds
// check (start + ceil(length/8) <= numDataPages) — and places the digest
// into B per the digest's length.
func hashIntoB(m *machine.Machine, fd Data, fn hashFunc) error {
	data, err := m.DataBytesRange(fd.Value1, fd.Value2)
	if err != nil {
		return err
	}
	digest := fn(data)
	writeDigestToB(m, digest)
	return nil
}

// checkHashWithB recomputes fn over the same data region and compares
// against the digest currently encoded in B, returning 1 if equal, 0
// otherwise. rightAligned20 selects the RMD160/HASH160 20-byte layout
// (b1,b2 plus the high 32 bits of b3) instead of the 16- or 32-byte layouts.
func checkHashWithB(m *machine.Machine, fd Data, fn hashFunc, rightAligned20 bool) (int64, error) {
	data, err := m.DataBytesRange(fd.Value1, fd.Value2)
	if err != nil {
		return 0, err
	}
	actual := fn(data)
	var expected []byte
	switch {
	case rightAligned20:
		expected = digestFromB20(m)
	case len(actual) == 16:
		expected = digestFromB16(m)
	default:
		expected = digestFromB32(m)
	}
	if bytes.Equal(actual, expected) {
		return 1, nil
	}
	return 0, nil
}

func wordBE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func putWordBE(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst, v)
}

// writeDigestToB places a hash digest into B using the size-dependent
// layout: 16-byte digests fill b1,b2 with b3,b4 zero;
// 20-byte digests fill b1,b2 and right-align the last 4 bytes into b3's
// high 32 bits with b4 zero; 32-byte digests fill all four words directly.
func writeDigestToB(m *machine.Machine, digest []byte) {
	m.B = [4]uint64{}
	switch len(digest) {
	case 16:
		m.B[0] = wordBE(digest[0:8])
		m.B[1] = wordBE(digest[8:16])
	case 20:
		m.B[0] = wordBE(digest[0:8])
		m.B[1] = wordBE(digest[8:16])
		last4 := binary.BigEndian.Uint32(digest[16:20])
		m.B[2] = uint64(last4) << 32
	case 32:
		m.B[0] = wordBE(digest[0:8])
		m.B[1] = wordBE(digest[8:16])
		m.B[2] = wordBE(digest[16:24])
		m.B[3] = wordBE(digest[24:32])
	}
}

func digestFromB16(m *machine.Machine) []byte {
	buf := make([]byte, 16)
	putWordBE(buf[0:8], m.B[0])
	putWordBE(buf[8:16], m.B[1])
	return buf
}

func digestFromB20(m *machine.Machine) []byte {
	buf := make([]byte, 20)
	putWordBE(buf[0:8], m.B[0])
	putWordBE(buf[8:16], m.B[1])
	binary.BigEndian.PutUint32(buf[16:20], uint32(m.B[2]>>32))
	return buf
}

func digestFromB32(m *machine.Machine) []byte {
	buf := make([]byte, 32)
	putWordBE(buf[0:8], m.B[0])
	putWordBE(buf[8:16], m.B[1])
	putWordBE(buf[16:24], m.B[2])
	putWordBE(buf[24:32], m.B[3])
	return buf
}
