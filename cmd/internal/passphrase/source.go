package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when no passphrase is in the environment and
// stdin cannot be prompted.
var ErrNoTerminal = errors.New("signer keystore passphrase required and no terminal available")

// Source resolves a signer keystore passphrase from an environment variable,
// falling back to a terminal prompt. The first result is cached.
type Source struct {
	envVar string
	lookup func(string) (string, bool)
	prompt io.Writer
	tty    func() bool
	read   func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source reading envVar, then stdin.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar: strings.TrimSpace(envVar),
		lookup: os.LookupEnv,
		prompt: os.Stderr,
		tty:    func() bool { return term.IsTerminal(fd) },
		read:   func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// Get returns the passphrase. A set environment variable is used verbatim;
// whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookup(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.tty() {
		if s.envVar != "" {
			return "", fmt.Errorf("%w; set %s", ErrNoTerminal, s.envVar)
		}
		return "", ErrNoTerminal
	}

	fmt.Fprint(s.prompt, "Signer keystore passphrase: ")
	raw, err := s.read()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("signer keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
