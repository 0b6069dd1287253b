package appmodel

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numericChars = "0123456789"
	// no ';', '=', quotes or '@' so generated values survive unquoted in
	// keyword connection strings and URIs
	specialChars = "-_.!~*()+"
)

// DefaultPasswordLength is the minimum length of generated passwords.
const DefaultPasswordLength = 22

// GenerateParameterDefault describes how a missing parameter value is generated.
type GenerateParameterDefault struct {
	MinLength int `json:"minLength"`

	Lower   bool `json:"lower"`
	Upper   bool `json:"upper"`
	Numeric bool `json:"numeric"`
	Special bool `json:"special"`

	MinLower   int `json:"minLower,omitempty"`
	MinUpper   int `json:"minUpper,omitempty"`
	MinNumeric int `json:"minNumeric,omitempty"`
	MinSpecial int `json:"minSpecial,omitempty"`
}

// PasswordDefault returns the policy used for generated database passwords:
// every enabled class appears at least once.
func PasswordDefault(special bool) *GenerateParameterDefault {
	g := &GenerateParameterDefault{
		MinLength:  DefaultPasswordLength,
		Lower:      true,
		Upper:      true,
		Numeric:    true,
		Special:    special,
		MinLower:   1,
		MinUpper:   1,
		MinNumeric: 1,
	}
	if special {
		g.MinSpecial = 1
	}
	return g
}

// Generate returns a random value honouring the policy.
func (g *GenerateParameterDefault) Generate() (string, error) {
	type class struct {
		enabled bool
		chars   string
		min     int
	}
	classes := []class{
		{g.Lower, lowerChars, g.MinLower},
		{g.Upper, upperChars, g.MinUpper},
		{g.Numeric, numericChars, g.MinNumeric},
		{g.Special, specialChars, g.MinSpecial},
	}

	var (
		pool     string
		out      []byte
		required int
	)
	for _, c := range classes {
		if !c.enabled {
			if c.min > 0 {
				return "", errors.New("minimum set for a disabled character class")
			}
			continue
		}
		pool += c.chars
		for i := 0; i < c.min; i++ {
			ch, err := randomChar(c.chars)
			if err != nil {
				return "", err
			}
			out = append(out, ch)
		}
		required += c.min
	}
	if pool == "" {
		return "", errors.New("at least one character class must be enabled")
	}

	length := g.MinLength
	if length <= 0 {
		length = DefaultPasswordLength
	}
	if required > length {
		length = required
	}

	for len(out) < length {
		ch, err := randomChar(pool)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	// Fisher-Yates shuffle
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomChar(chars string) (byte, error) {
	i, err := randomInt(len(chars))
	if err != nil {
		return 0, err
	}
	return chars[i], nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
