package transport

import "github.com/golang/snappy"

func decodeRaw(frame []byte) ([]byte, error) {
	return snappy.Decode(nil, frame)
}

func encodeRaw(raw []byte) []byte {
	return snappy.Encode(nil, raw)
}
