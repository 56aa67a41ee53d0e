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

// Source resolves a secret from an environment variable, falling back to a
// terminal prompt. The first result, value or error, is cached.
type Source struct {
	envVar string
	label  string

	// Overridable for tests.
	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source that checks envVar before prompting for label
// (for example "API signing secret").
func NewSource(envVar, label string) *Source {
	if strings.TrimSpace(label) == "" {
		label = "secret"
	}
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		label:      label,
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(fd) },
		prompt:     os.Stderr,
	}
}

// Get returns the secret. A set but blank environment variable is an error
// rather than a reason to prompt.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("%s required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s required and no terminal available", s.label)
	}
	fmt.Fprintf(s.prompt, "Enter %s: ", s.label)
	raw, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.label, err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New(s.label + " cannot be empty")
	}
	return string(raw), nil
}
