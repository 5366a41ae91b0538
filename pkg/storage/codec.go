package storage

import (
	"strings"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// NameCodec turns observable names into store keys and back.
type NameCodec interface {
	Encode(name types.ObservableName) string
	Decode(key string) types.ObservableName
}

// ColonCodec joins operator labels with ':'. It does not use '*', which
// separates operators in raw estimator tokens.
//
// Decode("") yields a name with a single empty label.
type ColonCodec struct{}

// Encode implements NameCodec.
func (ColonCodec) Encode(name types.ObservableName) string {
	return strings.Join(name, types.FieldSeparator)
}

// Decode implements NameCodec.
func (ColonCodec) Decode(key string) types.ObservableName {
	return types.ObservableName(strings.Split(key, types.FieldSeparator))
}
