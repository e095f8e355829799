package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/ciyamat/atvm/pkg/atvm/address"
)

// Encoding types accepted for creation-bytes / disassembly payloads.
const (
	EncodingBase58 = "base58"
	EncodingBase64 = "base64"
)

// EncodeBase58 encodes bytes to base58 string.
func EncodeBase58(data []byte) string {
	return base58.Encode(data)
}

// DecodeBase58 decodes a base58 string to bytes.
func DecodeBase58(s string) ([]byte, error) {
	return base58.Decode(s)
}

// EncodeBase64 encodes bytes to base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 string to bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// EncodeAddress encodes an AT address to its base58 text form.
func EncodeAddress(a address.Address) string {
	return a.String()
}

// DecodeAddress decodes a base58 string to an AT address.
func DecodeAddress(s string) (address.Address, error) {
	return address.AddressFromBase58(s)
}

// DecodeBytes decodes a payload in the given encoding, defaulting to base64.
func DecodeBytes(s, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return DecodeBase58(s)
	case EncodingBase64, "":
		return DecodeBase64(s)
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ValidateEncoding validates that an encoding string is supported.
func ValidateEncoding(encoding string) error {
	switch encoding {
	case EncodingBase58, EncodingBase64, "":
		return nil
	default:
		return fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
