// Package attest encodes travel attestations and submits them to an EAS
// registry.
package attest

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Schema is the registered layout of arrival attestations.
const Schema = "string country, uint256 arrivalTime"

// DefaultCountry is used when no country is given.
const DefaultCountry = "India"

// Payload is one arrival event.
type Payload struct {
	Country     string
	ArrivalTime uint64 // unix milliseconds
}

// NewPayload stamps country with the arrival time at.
func NewPayload(country string, at time.Time) Payload {
	if strings.TrimSpace(country) == "" {
		country = DefaultCountry
	}
	return Payload{Country: country, ArrivalTime: uint64(at.UnixMilli())}
}

var arrivalArgs = mustParseSchema(Schema)

// ParseSchema turns an EAS schema string ("type name, type name") into ABI
// arguments. Tuple types are not supported.
func ParseSchema(schema string) (abi.Arguments, error) {
	var args abi.Arguments
	for _, field := range strings.Split(schema, ",") {
		parts := strings.Fields(field)
		if len(parts) != 2 {
			return nil, fmt.Errorf("parse schema: malformed field %q", strings.TrimSpace(field))
		}
		typ, err := abi.NewType(parts[0], "", nil)
		if err != nil {
			return nil, fmt.Errorf("parse schema: field %q: %w", parts[1], err)
		}
		args = append(args, abi.Argument{Name: parts[1], Type: typ})
	}
	return args, nil
}

func mustParseSchema(schema string) abi.Arguments {
	args, err := ParseSchema(schema)
	if err != nil {
		panic(err)
	}
	return args
}

// Encode ABI-encodes an arrival payload in the layout of Schema.
func Encode(country string, arrivalTime uint64) ([]byte, error) {
	data, err := arrivalArgs.Pack(country, new(big.Int).SetUint64(arrivalTime))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode reverses Encode.
func Decode(data []byte) (Payload, error) {
	vals, err := arrivalArgs.Unpack(data)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if len(vals) != 2 {
		return Payload{}, errors.New("decode payload: wrong field count")
	}

	country, ok := vals[0].(string)
	if !ok {
		return Payload{}, errors.New("decode payload: country is not a string")
	}
	t, ok := vals[1].(*big.Int)
	if !ok || !t.IsUint64() {
		return Payload{}, errors.New("decode payload: arrival time out of range")
	}

	return Payload{Country: country, ArrivalTime: t.Uint64()}, nil
}
