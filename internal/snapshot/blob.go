package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how the vector payload is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// blob layout, little-endian:
//
//	magic[4] version u16 compression u8 reserved u8 dimensions u32
//	count u64 checksum u32 payload_len u64 payload
const (
	blobMagic      = "FVEC"
	blobVersion    = 1
	blobHeaderSize = 4 + 2 + 1 + 1 + 4 + 8 + 4 + 8

	codecNone byte = 0
	codecZstd byte = 1
)

type blobHeader struct {
	Dimensions int
	Count      int
	Checksum   uint32
}

// ParseCompression maps a config value to a Compression. "" means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown snapshot compression: %s (supported: none, zstd)", s)
	}
}

func encodeVectors(dimensions int, vectors []float32, compression Compression) ([]byte, blobHeader, error) {
	raw := make([]byte, 4*len(vectors))
	for i, v := range vectors {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	hdr := blobHeader{
		Dimensions: dimensions,
		Count:      len(vectors) / dimensions,
		Checksum:   crc32.ChecksumIEEE(raw),
	}

	codec := codecNone
	payload := raw
	if compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, hdr, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(raw, nil)
		_ = enc.Close()
		codec = codecZstd
	}

	var buf bytes.Buffer
	buf.Grow(blobHeaderSize + len(payload))
	buf.WriteString(blobMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blobVersion))
	buf.WriteByte(codec)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(hdr.Dimensions))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(hdr.Count))
	_ = binary.Write(&buf, binary.LittleEndian, hdr.Checksum)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)
	return buf.Bytes(), hdr, nil
}

func decodeVectors(data []byte) ([]float32, blobHeader, error) {
	var hdr blobHeader
	if len(data) < blobHeaderSize {
		return nil, hdr, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	if string(data[:4]) != blobMagic {
		return nil, hdr, fmt.Errorf("bad vector blob magic %q", data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != blobVersion {
		return nil, hdr, fmt.Errorf("unsupported vector blob version %d", v)
	}
	codec := data[6]
	hdr.Dimensions = int(binary.LittleEndian.Uint32(data[8:12]))
	count := binary.LittleEndian.Uint64(data[12:20])
	hdr.Checksum = binary.LittleEndian.Uint32(data[20:24])
	payloadLen := binary.LittleEndian.Uint64(data[24:32])
	payload := data[blobHeaderSize:]

	if hdr.Dimensions <= 0 {
		return nil, hdr, fmt.Errorf("invalid dimensions %d", hdr.Dimensions)
	}
	if uint64(len(payload)) != payloadLen {
		return nil, hdr, fmt.Errorf("payload length %d, header says %d", len(payload), payloadLen)
	}
	rowBytes := uint64(hdr.Dimensions) * 4
	if count > math.MaxInt/rowBytes {
		return nil, hdr, fmt.Errorf("vector count %d with dimension %d overflows", count, hdr.Dimensions)
	}
	want := count * rowBytes

	raw := payload
	switch codec {
	case codecNone:
	case codecZstd:
		// Decompressed output may not exceed what the header declares.
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(max(want, 1)))
		if err != nil {
			return nil, hdr, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, hdr, fmt.Errorf("failed to decompress vectors: %w", err)
		}
	default:
		return nil, hdr, fmt.Errorf("unknown compression codec %d", codec)
	}

	if uint64(len(raw)) != want {
		return nil, hdr, fmt.Errorf("vector data is %d bytes, want %d", len(raw), want)
	}
	if sum := crc32.ChecksumIEEE(raw); sum != hdr.Checksum {
		return nil, hdr, fmt.Errorf("vector checksum mismatch: got %08x, want %08x", sum, hdr.Checksum)
	}
	hdr.Count = int(count)

	vectors := make([]float32, len(raw)/4)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vectors, hdr, nil
}
