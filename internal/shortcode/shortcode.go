package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	alphabet   = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CodeLength = 7
	maxRetries = 3
)

// denylist filters codes that happen to spell something unfortunate.
// Matched as a case-insensitive substring.
var denylist = []string{
	"fuck", "shit", "damn", "hell", "bitch", "ass", "bastard",
	"porn", "sex", "xxx", "nazi", "kill", "die", "hate",
}

// ErrExhausted means every attempt collided. With 62^7 combinations this
// signals a broken RNG or a near-full keyspace, not bad luck, so the caller
// should abort link creation.
var ErrExhausted = fmt.Errorf("failed to generate unique short code after %d attempts", maxRetries)

// Index is the collision probe, satisfied by repo.LinksRepo.
type Index interface {
	ShortCodeExists(ctx context.Context, code string) (bool, error)
}

type Generator struct {
	index Index
}

func NewGenerator(index Index) *Generator {
	return &Generator{index: index}
}

// Generate returns a unique 7-character Base62 code, retrying on denylist
// hits and collisions up to the attempt bound.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generating candidate: %w", err)
		}

		if containsDenied(code) {
			log.Debug().Msg("generated code hit denylist, regenerating")
			continue
		}

		exists, err := g.index.ShortCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking collision: %w", err)
		}
		if !exists {
			return code, nil
		}

		log.Debug().Int("attempt", attempt+1).Msg("short code collision")
	}

	return "", ErrExhausted
}

// Validate checks a caller-supplied custom code against the same rules
// generated codes must satisfy.
func Validate(code string) error {
	if len(code) != CodeLength {
		return fmt.Errorf("short code must be %d characters", CodeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(alphabet, c) {
			return errors.New("short code must be alphanumeric")
		}
	}
	if containsDenied(code) {
		return errors.New("short code contains a disallowed word")
	}
	return nil
}

func randomCode() (string, error) {
	b := make([]byte, CodeLength)
	alphabetLen := big.NewInt(int64(len(alphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

func containsDenied(code string) bool {
	lower := strings.ToLower(code)
	for _, word := range denylist {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
