package gcrypto

import (
	"bytes"
	"fmt"
	"reflect"
)

// Prefixes are encoded as a fixed width.
const prefixSize = 8

// Registry is a runtime-defined registry to manage encoding and decoding
// a predetermined set of public key types.
type Registry struct {
	byType map[reflect.Type]string

	// For unmarshalling
	byPrefix map[string]NewPubKeyFunc
}

type NewPubKeyFunc func([]byte) (PubKey, error)

// Register associates name with the concrete type of inst.
// It panics if name is empty, longer than the fixed prefix width,
// or already registered.
func (r *Registry) Register(name string, inst PubKey, newFn NewPubKeyFunc) {
	if name == "" || len(name) > prefixSize {
		panic(fmt.Errorf("BUG: invalid public key type name %q", name))
	}

	if r.byPrefix == nil {
		r.byPrefix = map[string]NewPubKeyFunc{}
	}
	if _, ok := r.byPrefix[name]; ok {
		panic(fmt.Errorf("BUG: public key type %q registered twice", name))
	}
	r.byPrefix[name] = newFn

	if r.byType == nil {
		r.byType = map[reflect.Type]string{}
	}
	r.byType[reflect.TypeOf(inst)] = name
}

// Marshal returns the type-prefixed encoding of pubKey.
// It panics if the key's type was never registered.
func (r *Registry) Marshal(pubKey PubKey) []byte {
	var nameHeader [prefixSize]byte

	typ := reflect.TypeOf(pubKey)
	prefix, ok := r.byType[typ]
	if !ok {
		panic(fmt.Errorf(
			"BUG: attempted to Marshal a public key that was never registered (reflect type: %s, type name: %s)",
			typ, pubKey.TypeName(),
		))
	}

	copy(nameHeader[:], prefix)

	return append(nameHeader[:], pubKey.PubKeyBytes()...)
}

// Unmarshal returns a new public key based on b,
// which should be the result of a previous call to [*Registry.Marshal].
//
// Callers should assume that the newly returned PubKey
// will retain a reference to b;
// therefore the slice must not be modified after calling Unmarshal.
func (r *Registry) Unmarshal(b []byte) (PubKey, error) {
	if len(b) < prefixSize {
		return nil, fmt.Errorf("encoded public key too short: %d bytes", len(b))
	}

	prefix := bytes.TrimRight(b[:prefixSize], "\x00")

	fn := r.byPrefix[string(prefix)]
	if fn == nil {
		return nil, fmt.Errorf("no registered public key type for prefix %q", prefix)
	}

	return fn(b[prefixSize:])
}

// Decode returns a new PubKey from the given type and public key bytes.
// It returns an error if the typeName was not previously registered,
// or if the registered [NewPubKeyFunc] itself returns an error.
func (r *Registry) Decode(typeName string, b []byte) (PubKey, error) {
	fn := r.byPrefix[typeName]
	if fn == nil {
		return nil, fmt.Errorf("no registered public key type for name %q", typeName)
	}

	return fn(b)
}
