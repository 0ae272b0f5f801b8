package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	algorithmID           = "argon2id"

	digestLength uint32 = 32
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultConfig returns interactive-login cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
	}
}

// Hasher computes deterministic salted digests. The salt string embeds the
// algorithm identifier and its parameters, so old digests stay verifiable
// after a parameter change.
type Hasher struct {
	config Config
}

// NewHasher validates the configuration and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("password salt length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// NewSalt generates a fresh random salt carrying the current parameters:
//
//	$argon2id$v=19$m=65536,t=1,p=2$<base64 salt>
func (h *Hasher) NewSalt() (string, error) {
	raw := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(raw),
	), nil
}

// Hash digests the plaintext under the given salt. The result depends only
// on (salt, plaintext).
func (h *Hasher) Hash(salt, plaintext string) (string, error) {
	parsed, err := parseSalt(salt)
	if err != nil {
		return "", err
	}

	digest := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		digestLength,
	)
	return base64.RawStdEncoding.EncodeToString(digest), nil
}

// Verify recomputes the digest and compares it in constant time.
func (h *Hasher) Verify(salt, plaintext, storedDigest string) (bool, error) {
	computed, err := h.Hash(salt, plaintext)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1, nil
}

type parsedSalt struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
}

func parseSalt(salt string) (*parsedSalt, error) {
	parts := strings.Split(salt, "$")
	if len(parts) != 5 || parts[0] != "" {
		return nil, errors.New("invalid salt format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	raw, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(raw) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	return &parsedSalt{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        raw,
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
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
