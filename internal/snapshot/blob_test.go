package snapshot

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func TestDecodeVectors_Rejects(t *testing.T) {
	good, _, err := encodeVectors(2, []float32{1, 0, 0, 1}, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}

	badMagic := bytes.Clone(good)
	copy(badMagic, "XXXX")
	badVersion := bytes.Clone(good)
	badVersion[4] = 9
	badCodec := bytes.Clone(good)
	badCodec[6] = 7

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:10]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"bad codec", badCodec},
		{"trailing bytes", append(bytes.Clone(good), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := decodeVectors(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeVectors_HeaderCountOverflow(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		blob, _, err := encodeVectors(2, []float32{1, 0}, c)
		if err != nil {
			t.Fatal(err)
		}
		binary.LittleEndian.PutUint64(blob[12:20], math.MaxUint64)
		if _, _, err := decodeVectors(blob); err == nil || !strings.Contains(err.Error(), "overflows") {
			t.Errorf("%s: got %v, want overflow error", c, err)
		}
	}
}

func TestDecodeVectors_ZstdOutputBoundedByHeader(t *testing.T) {
	data := make([]float32, 512*100)
	blob, _, err := encodeVectors(512, data, CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint64(blob[12:20], 1)
	_, _, err = decodeVectors(blob)
	if err == nil || !strings.Contains(err.Error(), "decompress") {
		t.Errorf("got %v, want decompression limit error", err)
	}
}

func TestEncodeVectors_ZstdShrinksRepetitiveData(t *testing.T) {
	data := make([]float32, 512*100)
	for i := range data {
		data[i] = float32(i % 4)
	}
	plain, _, err := encodeVectors(512, data, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	packed, hdr, err := encodeVectors(512, data, CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) >= len(plain) {
		t.Errorf("zstd blob %d bytes, plain %d bytes", len(packed), len(plain))
	}
	got, gotHdr, err := decodeVectors(packed)
	if err != nil {
		t.Fatal(err)
	}
	if gotHdr != hdr || len(got) != len(data) || got[7] != data[7] {
		t.Errorf("decoded header %+v, want %+v", gotHdr, hdr)
	}
}

func TestDecodeMetadata_UnsupportedVersion(t *testing.T) {
	if _, err := decodeMetadata([]byte(`{"version": 9, "records": []}`), 0); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := decodeMetadata([]byte(`   `), 0); err == nil {
		t.Error("expected error for blank document")
	}
	if _, err := decodeMetadata([]byte(`{"metadata": {"x": {}}}`), 1); err == nil {
		t.Error("expected error for non-numeric legacy position")
	}
	if _, err := decodeMetadata([]byte(`{"metadata": {"1": {}}}`), 1); err == nil {
		t.Error("expected error for legacy position past the vector count")
	}
}
