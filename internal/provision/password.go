package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Temporary password policy: at least TempPasswordLen characters with one
// lowercase, one uppercase, one digit and one symbol guaranteed, the rest
// drawn uniformly from the combined alphabet, then the whole string shuffled.
const TempPasswordLen = 12

const (
	pwLower   = "abcdefghijklmnopqrstuvwxyz"
	pwUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	pwDigits  = "0123456789"
	pwSymbols = "!@#$%^&*()-_=+"
)

// Invitation codes use an alphabet without lookalike characters (0/O, 1/l/I).
// 32 characters over a 57-symbol alphabet is ~186 bits: infeasible to guess by
// enumeration within any expiry window.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
	codeLen      = 32
)

// GenerateTempPassword returns a password satisfying the composition policy.
func GenerateTempPassword() (string, error) {
	classes := []string{pwLower, pwUpper, pwDigits, pwSymbols}
	combined := pwLower + pwUpper + pwDigits + pwSymbols

	buf := make([]byte, 0, TempPasswordLen)
	for _, class := range classes {
		ch, err := randChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, ch)
	}
	for len(buf) < TempPasswordLen {
		ch, err := randChar(combined)
		if err != nil {
			return "", err
		}
		buf = append(buf, ch)
	}
	if err := shuffle(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// GenerateInviteCode returns a new opaque invitation code.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, codeLen)
	for i := range buf {
		ch, err := randChar(codeAlphabet)
		if err != nil {
			return "", err
		}
		buf[i] = ch
	}
	return string(buf), nil
}

func randChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return alphabet[n.Int64()], nil
}

func shuffle(buf []byte) error {
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("read random: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}
