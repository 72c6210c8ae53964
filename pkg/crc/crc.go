// Package crc implements the bit-serial checksums used by the application
// header format. The polynomial/seed pairs are specific to this format: the
// CRC-32 is not CRC-32/IEEE and the CRC-8 is not CRC-8/ATM, and the input byte
// is XORed into the low byte of the accumulator rather than the top byte.
// Bootloaders in the field expect these exact values, so both functions are a
// bit-level contract.
package crc

const (
	crc32Poly uint32 = 0x04C11DB7
	crc32Seed uint32 = 0x10101010

	crc8Poly uint8 = 0x07
	crc8Seed uint8 = 0xB6
)

// CRC32 computes the application image checksum over data.
func CRC32(data []byte) uint32 {
	crc := crc32Seed
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 32; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ crc32Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CRC8 computes the application header checksum over data.
func CRC8(data []byte) uint8 {
	crc := crc8Seed
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ crc8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
