package objstore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// compressionManager compresses object bodies before they reach disk.
// Encoders and decoders are pooled because construction is expensive.
type compressionManager struct {
	minSize  int
	encoders sync.Pool
	decoders sync.Pool
}

func newCompressionManager(minSize int) (*compressionManager, error) {
	// Construct one encoder and decoder up front so option errors surface
	// here instead of inside the pools.
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	enc.Close()

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	dec.Close()

	return &compressionManager{
		minSize: minSize,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.SpeedDefault),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}, nil
}

// compress returns the compressed body and whether compression was applied.
// Bodies below the size floor or that do not shrink are stored as-is.
func (cm *compressionManager) compress(content []byte) ([]byte, bool) {
	if len(content) < cm.minSize {
		return content, false
	}

	enc := cm.encoders.Get().(*zstd.Encoder)
	defer cm.encoders.Put(enc)

	compressed := enc.EncodeAll(content, make([]byte, 0, len(content)))
	if len(compressed) >= len(content) {
		return content, false
	}
	return compressed, true
}

func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if len(content) < 4 || !bytes.Equal(content[:4], zstdMagic) {
		return content, nil
	}

	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	return dec.DecodeAll(content, nil)
}

func (cm *compressionManager) close() {
	// Drop the constructors so draining the pools terminates.
	cm.encoders.New = nil
	cm.decoders.New = nil
	for {
		v := cm.encoders.Get()
		if v == nil {
			break
		}
		v.(*zstd.Encoder).Close()
	}
	for {
		v := cm.decoders.Get()
		if v == nil {
			break
		}
		v.(*zstd.Decoder).Close()
	}
}
