package codec

import (
	"io"
	"sync"
)

// DecoderPool manages reusable decoders to reduce allocation overhead when
// many blocks are decompressed through the same codec.
type DecoderPool struct {
	codec     Codec
	maxMemory uint64
	pool      *sync.Pool
}

// NewDecoderPool creates a pool of decoders for the given codec.
// If maxMemory is 0, no memory limit is applied to decoders.
func NewDecoderPool(c Codec, maxMemory uint64) *DecoderPool {
	p := &DecoderPool{
		codec:     c,
		maxMemory: maxMemory,
	}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.codec.NewDecoder(nil, p.maxMemory)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// Get returns a decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *DecoderPool) Get(r io.Reader) (Decoder, func(), error) {
	if p == nil || p.pool == nil {
		dec, err := p.codec.NewDecoder(r, p.maxMemory)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	value := p.pool.Get()
	dec, ok := value.(Decoder)
	if !ok {
		// Pool's New function failed, try directly.
		newDec, err := p.codec.NewDecoder(r, p.maxMemory)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.codec.NewDecoder(r, p.maxMemory)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil)
		p.pool.Put(dec)
	}, nil
}
