package password

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// DefaultSaltLength is the salt length used when callers pass a
	// non-positive length to [Hasher.GenerateSalt].
	DefaultSaltLength = 32

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltBytes   uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
	modernPrefix          = "$" + algorithmID + "$"
)

// Argon2Params tunes the modern hash scheme used for upgrade-on-login.
type Argon2Params struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns the parameters applied when a Hasher is
// built without explicit tuning.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher generates and verifies credential hashes.
//
// The primary scheme is hex(sha512(password ++ salt)) with an external
// per-user salt; that is the format legacy records carry and the format
// the remember-token digest is bound to. The secondary scheme is
// argon2id in PHC notation, produced by [Hasher.HashModern] for the
// optional upgrade-on-login path. [Hasher.Verify] accepts both.
type Hasher struct {
	params Argon2Params
}

// New creates a Hasher. Invalid argon2 parameters are rejected so a
// misconfigured upgrade path fails at construction, not at first login.
func New(params Argon2Params) (*Hasher, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return &Hasher{params: params}, nil
}

// GenerateSalt produces a hex salt of the requested length from a
// cryptographically secure source. Lengths <= 0 fall back to
// [DefaultSaltLength].
func (h *Hasher) GenerateSalt(length int) (string, error) {
	if length <= 0 {
		length = DefaultSaltLength
	}

	raw := make([]byte, (length+1)/2)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}

	return hex.EncodeToString(raw)[:length], nil
}

// Hash computes hex(sha512(password ++ salt)).
func (h *Hasher) Hash(password, salt string) string {
	sum := sha512.Sum512([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether password matches storedHash. Comparison is
// constant-time for both schemes.
func (h *Hasher) Verify(password, storedHash, salt string) bool {
	if strings.HasPrefix(storedHash, modernPrefix) {
		ok, err := h.verifyModern(password, storedHash)
		return err == nil && ok
	}

	computed := h.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// NeedsUpgrade reports whether storedHash is still on the legacy
// sha512 scheme and should be re-hashed after a successful login.
func (h *Hasher) NeedsUpgrade(storedHash string) bool {
	return !strings.HasPrefix(storedHash, modernPrefix)
}

// HashModern produces an argon2id hash in PHC notation. The salt is
// internal to the encoding; the caller's per-user salt stays untouched
// because the remember-token digest depends on it.
func (h *Hasher) HashModern(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	var b strings.Builder
	b.WriteString(modernPrefix)
	b.WriteString("v=")
	b.WriteString(strconv.Itoa(argon2.Version))
	b.WriteString("$m=")
	b.WriteString(strconv.FormatUint(uint64(h.params.Memory), 10))
	b.WriteString(",t=")
	b.WriteString(strconv.FormatUint(uint64(h.params.Time), 10))
	b.WriteString(",p=")
	b.WriteString(strconv.FormatUint(uint64(h.params.Parallelism), 10))
	b.WriteByte('$')
	b.WriteString(base64.StdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.StdEncoding.EncodeToString(hash))

	return b.String(), nil
}

func (h *Hasher) verifyModern(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parsePHCParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltBytes) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parsePHCParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

func validateParams(params Argon2Params) error {
	if params.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if params.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if params.SaltLength < minSaltBytes {
		return errors.New("password salt length must be >= 16")
	}
	if params.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
