package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher: одностороннее хэширование паролей и кодов доступа устройств.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

const (
	AlgArgon2id = "argon2id"
	AlgBcrypt   = "bcrypt"
)

var ErrUnknownAlgorithm = errors.New("unknown credential algorithm")

// Параметры argon2id.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

var DefaultParams = Params{Time: 1, Memory: 64 * 1024, Threads: 2, KeyLen: 32, SaltLen: 16}

// Service хэширует выбранным алгоритмом, а проверяет любым известным,
// поэтому смена алгоритма не ломает старые дайджесты.
type Service struct {
	alg        string
	params     Params
	bcryptCost int
}

func New(alg string) (*Service, error) {
	switch alg {
	case "", AlgArgon2id:
		alg = AlgArgon2id
	case AlgBcrypt:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
	return &Service{alg: alg, params: DefaultParams, bcryptCost: bcrypt.DefaultCost}, nil
}

// WithParams нужен тестам: дешёвые параметры ускоряют прогон.
func (s *Service) WithParams(p Params, bcryptCost int) *Service {
	cp := *s
	cp.params = p
	cp.bcryptCost = bcryptCost
	return &cp
}

func (s *Service) Hash(plain string) (string, error) {
	if s.alg == AlgBcrypt {
		h, err := bcrypt.GenerateFromPassword([]byte(plain), s.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(h), nil
	}
	salt := make([]byte, s.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := s.params
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (s *Service) Verify(plain, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2(plain, digest)
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
	}
	return false
}

func verifyArgon2(plain, digest string) bool {
	// $argon2id$v=19$m=65536,t=1,p=2$<salt>$<key>
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var mem, t uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &t, &threads); err != nil {
		return false
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := b64.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, t, mem, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// RandomCode: случайный код для писем активации (hex, 2*n символов).
func RandomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
