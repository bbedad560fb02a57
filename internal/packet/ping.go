package packet

// EncodePingResp builds the fixed 2-byte PINGRESP reply.
func EncodePingResp() []byte {
	return []byte{PINGRESP.Byte(0), 0x00}
}
