package value

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// fingerprintVersion is the version byte mixed into every fingerprint.
// Bumping it invalidates every existing cache entry.
const fingerprintVersion = 1

// FingerprintError reports that an argument fell outside the JSON value set
// and could not be fingerprinted.
type FingerprintError struct {
	Msg string
}

func (e *FingerprintError) Error() string { return "fingerprint: " + e.Msg }

// Fingerprint derives the deterministic, opaque cache key for a
// (function_ref, args) pair.
//
// Two calls with semantically equal function_ref/args (per Equal) always
// produce the same digest; canonicalization (sorted map keys, distinct
// int/float, length-prefixed fields) guarantees no ambiguity in the byte
// stream fed to the hash.
func Fingerprint(functionRef string, args []Value) (string, error) {
	h := sha256.New()
	writeField := func(b []byte) {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}

	writeField([]byte{fingerprintVersion})
	writeField([]byte(functionRef))

	writeField([]byte{byte(len(args))})
	for _, a := range args {
		if err := writeValue(h, a); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeValue recursively writes the canonical encoding of v into h using
// length-prefixed fields, failing if v (or any nested value) is not in the
// JSON value set.
func writeValue(h interface{ Write([]byte) (int, error) }, v Value) error {
	writeField := func(b []byte) {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}

	switch v.Kind {
	case KindNull:
		writeField([]byte{byte(KindNull)})
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		writeField([]byte{byte(KindBool), b})
	case KindInt:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.Int))
		writeField(append([]byte{byte(KindInt)}, buf[:]...))
	case KindFloat:
		writeField([]byte{byte(KindFloat)})
		writeField([]byte(fmt.Sprintf("%x", v.Float)))
	case KindString:
		writeField([]byte{byte(KindString)})
		writeField([]byte(v.String))
	case KindSeq:
		writeField([]byte{byte(KindSeq)})
		writeField(encodeCount(len(v.Seq)))
		for _, e := range v.Seq {
			if err := writeValue(h, e); err != nil {
				return err
			}
		}
	case KindMap:
		writeField([]byte{byte(KindMap)})
		keys := sortedKeys(v.Map)
		writeField(encodeCount(len(keys)))
		for _, k := range keys {
			writeField([]byte(k))
			if err := writeValue(h, v.Map[k]); err != nil {
				return err
			}
		}
	default:
		return &FingerprintError{Msg: fmt.Sprintf("value of unknown kind %d is not in the JSON value set", v.Kind)}
	}
	return nil
}

func encodeCount(n int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}
