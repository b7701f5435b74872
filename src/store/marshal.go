package store

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/stablemesh/stablemesh/src/stableset"
)

func marshalMembers(members []stableset.Member) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(members); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func unmarshalMembers(data []byte, members *[]stableset.Member) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(members)
}
