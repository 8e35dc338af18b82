package swap

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrPathIntegrity is returned when a path's endpoints do not match the
// assets a swap is supposed to connect.
var ErrPathIntegrity = errors.New("swap path failed integrity check")

const (
	addrLen = 20
	feeLen  = 3
	hopLen  = addrLen + feeLen
)

// Path is an exact-input swap route: n tokens joined by n-1 fee tiers.
type Path struct {
	Tokens []common.Address
	Fees   []uint32
}

// Single builds a one-hop path.
func Single(tokenIn common.Address, fee uint32, tokenOut common.Address) Path {
	return Path{Tokens: []common.Address{tokenIn, tokenOut}, Fees: []uint32{fee}}
}

// First returns the input token of the path.
func (p Path) First() common.Address {
	if len(p.Tokens) == 0 {
		return common.Address{}
	}
	return p.Tokens[0]
}

// Last returns the output token of the path.
func (p Path) Last() common.Address {
	if len(p.Tokens) == 0 {
		return common.Address{}
	}
	return p.Tokens[len(p.Tokens)-1]
}

// Validate checks the path is well formed and connects tokenIn to tokenOut.
func (p Path) Validate(tokenIn, tokenOut common.Address) error {
	if len(p.Tokens) < 2 || len(p.Fees) != len(p.Tokens)-1 {
		return fmt.Errorf("%w: malformed path", ErrPathIntegrity)
	}
	for _, fee := range p.Fees {
		if fee == 0 || fee >= 1_000_000 {
			return fmt.Errorf("%w: fee tier %d", ErrPathIntegrity, fee)
		}
	}
	if p.First() != tokenIn {
		return fmt.Errorf("%w: first token %s", ErrPathIntegrity, p.First().Hex())
	}
	if p.Last() != tokenOut {
		return fmt.Errorf("%w: last token %s", ErrPathIntegrity, p.Last().Hex())
	}
	return nil
}

// Encode packs the path into the router wire form: 20-byte token addresses
// joined by 3-byte big-endian fee tiers.
func (p Path) Encode() ([]byte, error) {
	if len(p.Tokens) < 2 || len(p.Fees) != len(p.Tokens)-1 {
		return nil, fmt.Errorf("%w: malformed path", ErrPathIntegrity)
	}
	out := make([]byte, 0, len(p.Tokens)*addrLen+len(p.Fees)*feeLen)
	for i, token := range p.Tokens {
		out = append(out, token.Bytes()...)
		if i < len(p.Fees) {
			fee := p.Fees[i]
			out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return out, nil
}

// Decode unpacks a router wire-form path.
func Decode(data []byte) (Path, error) {
	if len(data) < 2*addrLen+feeLen || (len(data)-addrLen)%hopLen != 0 {
		return Path{}, fmt.Errorf("%w: bad encoded length %d", ErrPathIntegrity, len(data))
	}

	var p Path
	p.Tokens = append(p.Tokens, common.BytesToAddress(data[:addrLen]))
	for off := addrLen; off < len(data); off += hopLen {
		fee := uint32(data[off])<<16 | uint32(data[off+1])<<8 | uint32(data[off+2])
		p.Fees = append(p.Fees, fee)
		p.Tokens = append(p.Tokens, common.BytesToAddress(data[off+feeLen:off+hopLen]))
	}
	return p, nil
}
