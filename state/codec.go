package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/jsonc"
)

// Format selects the on-disk encoding of a state file.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// Compression selects an optional compression applied after encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseFormat parses a format name; empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown state format: %q", name)
	}
}

// ParseCompression parses a compression name; empty means none.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(name))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown state compression: %q", name)
	}
}

// extension returns the file suffix used for the format.
func (f Format) extension() string {
	if f == FormatCBOR {
		return ".state.cbor"
	}
	return ".state"
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	// Deterministic encoding: the same state always produces the same bytes.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("state: CBOR encoder initialization failed: " + err.Error())
	}
	// State keys are strings; decode nested maps the way encoding/json does.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("state: CBOR decoder initialization failed: " + err.Error())
	}
}

func encode(s State, f Format) ([]byte, error) {
	switch f {
	case FormatCBOR:
		return cborEnc.Marshal(s)
	default:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// decode accepts JSON with comments and trailing commas, since state files
// are occasionally edited by hand.
func decode(data []byte, f Format) (State, error) {
	s := State{}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	switch f {
	case FormatCBOR:
		if err := cborDec.Unmarshal(data, &s); err != nil {
			return nil, err
		}
	default:
		if err := unmarshalJSON(jsonc.ToJSON(data), &s); err != nil {
			return nil, err
		}
	}
	if s == nil {
		return State{}, nil
	}
	for k, v := range s {
		n, err := normalizeNumbers(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		s[k] = n
	}
	return s, nil
}

// unmarshalJSON is json.Unmarshal keeping numbers as json.Number, so integers
// beyond 2^53 survive until normalizeNumbers sees them.
func unmarshalJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid character after top-level value")
	}
	return nil
}

// normalizeNumbers rewrites the numbers in a decoded value so every format
// loads them alike: integral values become int64 (uint64 past its range) and
// everything else float64.
func normalizeNumbers(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return u, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return normalizeFloat(f), nil
	case float64:
		return normalizeFloat(v), nil
	case float32:
		return normalizeFloat(float64(v)), nil
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), nil
		}
		return v, nil
	case map[string]any:
		for k, e := range v {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			v[k] = n
		}
		return v, nil
	case []any:
		for i, e := range v {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	default:
		return v, nil
	}
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func compress(data []byte, c Compression) ([]byte, error) {
	if c != CompressionZstd {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompress inflates zstd frames and passes anything else through, so a
// backend can read files written before compression was switched on or off.
func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
