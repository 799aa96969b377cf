package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	args := []Value{Int(1), String("a"), Map(map[string]Value{"z": Bool(true), "a": Null()})}

	f1, err := Fingerprint("sum", args)
	require.NoError(t, err)
	f2, err := Fingerprint("sum", args)
	require.NoError(t, err)
	require.Equal(t, f1, f2)
}

func TestFingerprintMapKeyOrderIndependent(t *testing.T) {
	a := []Value{Map(map[string]Value{"x": Int(1), "y": Int(2)})}
	b := []Value{Map(map[string]Value{"y": Int(2), "x": Int(1)})}

	fa, err := Fingerprint("f", a)
	require.NoError(t, err)
	fb, err := Fingerprint("f", b)
	require.NoError(t, err)
	require.Equal(t, fa, fb, "fingerprint must not depend on Go map iteration order")
}

func TestFingerprintDistinguishesIntFromFloat(t *testing.T) {
	fi, err := Fingerprint("f", []Value{Int(1)})
	require.NoError(t, err)
	ff, err := Fingerprint("f", []Value{Float(1.0)})
	require.NoError(t, err)
	require.NotEqual(t, fi, ff, "int 1 and float 1.0 must fingerprint differently")
}

func TestFingerprintDistinguishesFunctionRef(t *testing.T) {
	args := []Value{Int(1)}
	fa, err := Fingerprint("f1", args)
	require.NoError(t, err)
	fb, err := Fingerprint("f2", args)
	require.NoError(t, err)
	require.NotEqual(t, fa, fb)
}

func TestFingerprintRejectsUnsupportedKind(t *testing.T) {
	bad := Value{Kind: Kind(99)}
	_, err := Fingerprint("f", []Value{bad})
	require.Error(t, err)
	var fe *FingerprintError
	require.ErrorAs(t, err, &fe)
}
