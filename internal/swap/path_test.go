package swap

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	tokenC = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func TestPathEncodeDecodeRoundTrip(t *testing.T) {
	p := Path{
		Tokens: []common.Address{tokenA, tokenB, tokenC},
		Fees:   []uint32{500, 3000},
	}

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 20*3+3*2 {
		t.Fatalf("encoded length mismatch: %d", len(data))
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(p, back) {
		t.Fatalf("round-trip mismatch: %+v != %+v", p, back)
	}
}

func TestPathValidate(t *testing.T) {
	p := Single(tokenA, 500, tokenB)
	if err := p.Validate(tokenA, tokenB); err != nil {
		t.Fatalf("valid path rejected: %v", err)
	}

	if err := p.Validate(tokenB, tokenA); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("reversed endpoints must fail integrity: %v", err)
	}
	if err := p.Validate(tokenA, tokenC); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("wrong output token must fail integrity: %v", err)
	}

	malformed := Path{Tokens: []common.Address{tokenA}, Fees: nil}
	if err := malformed.Validate(tokenA, tokenA); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("single-token path must fail: %v", err)
	}

	zeroFee := Path{Tokens: []common.Address{tokenA, tokenB}, Fees: []uint32{0}}
	if err := zeroFee.Validate(tokenA, tokenB); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("zero fee tier must fail: %v", err)
	}
}

func TestDecodeRejectsBadLength(t *testing.T) {
	if _, err := Decode(make([]byte, 21)); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("short payload must fail: %v", err)
	}
	if _, err := Decode(make([]byte, 20+23+1)); !errors.Is(err, ErrPathIntegrity) {
		t.Fatalf("ragged payload must fail: %v", err)
	}
}
