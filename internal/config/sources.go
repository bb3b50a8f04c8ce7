package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"jobsync-engine/internal/domain"
)

var (
	// ErrInvalidSourcesEnv means the source list variable is set but unusable.
	ErrInvalidSourcesEnv = errors.New("config: invalid job board sources in environment")
	// ErrInvalidSourcesFile means the sources file exists but cannot be parsed.
	ErrInvalidSourcesFile = errors.New("config: invalid job board sources file")
)

// Origin values for SourceSet.
const (
	OriginEnv  = "env"
	OriginFile = "file"
	OriginNone = "none"
)

// TokenResolver looks up the bearer token stored for an account.
type TokenResolver interface {
	Token(account string) (string, error)
}

// SourceSet is the validated source list plus what was thrown away.
type SourceSet struct {
	Sources  []domain.SourceDescriptor `json:"sources"`
	Origin   string                    `json:"origin"`
	Dropped  int                       `json:"dropped"`
	Warnings []string                  `json:"warnings"`
}

// LoadSources reads the source list from the environment variable named by
// cfg.SourcesEnv when it is set, otherwise from cfg.SourcesFile.
//
// Malformed entries are dropped and reported as warnings. An environment
// payload that is empty, unparseable or has no valid entry is an error; a
// missing file just yields no sources. tokens may be nil.
func LoadSources(ctx context.Context, cfg *Config, l envconfig.Lookuper, tokens TokenResolver) (*SourceSet, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	set := &SourceSet{Sources: []domain.SourceDescriptor{}, Warnings: []string{}, Origin: OriginNone}

	if raw, ok := l.Lookup(cfg.SourcesEnv); ok {
		set.Origin = OriginEnv
		if err := set.fromEnv(cfg.SourcesEnv, raw); err != nil {
			return nil, err
		}
	} else if cfg.SourcesFile != "" {
		if err := set.fromFile(cfg.SourcesFile); err != nil {
			return nil, err
		}
	}

	if tokens != nil {
		set.resolveTokens(ctx, tokens)
	}
	return set, nil
}

func (s *SourceSet) fromEnv(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.Wrapf(ErrInvalidSourcesEnv, "%s is empty", name)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return errors.Wrapf(ErrInvalidSourcesEnv, "%s: %v", name, err)
	}
	for i, e := range entries {
		var d domain.SourceDescriptor
		if err := json.Unmarshal(e, &d); err != nil {
			s.drop("%s[%d]: %v", name, i, err)
			continue
		}
		s.accept(fmt.Sprintf("%s[%d]", name, i), d)
	}
	if len(s.Sources) == 0 {
		return errors.Wrapf(ErrInvalidSourcesEnv, "%s has no valid sources (%d dropped)", name, s.Dropped)
	}
	return nil
}

// fromFile parses YAML, which also covers JSON files.
func (s *SourceSet) fromFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.Warnings = append(s.Warnings, fmt.Sprintf("sources file %s not found", path))
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read sources file %s", path)
	}
	s.Origin = OriginFile
	if strings.TrimSpace(string(b)) == "" {
		return nil
	}

	var entries []yaml.Node
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return errors.Wrapf(ErrInvalidSourcesFile, "%s: %v", path, err)
	}
	for i := range entries {
		var d domain.SourceDescriptor
		if err := entries[i].Decode(&d); err != nil {
			s.drop("%s[%d]: %v", path, i, err)
			continue
		}
		s.accept(fmt.Sprintf("%s[%d]", path, i), d)
	}
	return nil
}

func (s *SourceSet) accept(where string, d domain.SourceDescriptor) {
	d = normalizeSource(d)
	if err := validate.Struct(d); err != nil {
		s.drop("%s: %s", where, sourceProblem(err))
		return
	}
	for _, have := range s.Sources {
		if have.Name == d.Name {
			s.drop("%s: duplicate source name %q", where, d.Name)
			return
		}
	}
	s.Sources = append(s.Sources, d)
}

func (s *SourceSet) drop(format string, args ...any) {
	s.Dropped++
	s.Warnings = append(s.Warnings, "dropped "+fmt.Sprintf(format, args...))
}

// resolveTokens fills Token for sources naming a keychain account. A lookup
// failure leaves the source in place and unauthenticated.
func (s *SourceSet) resolveTokens(ctx context.Context, tokens TokenResolver) {
	for i := range s.Sources {
		if ctx.Err() != nil {
			return
		}
		acct := s.Sources[i].TokenAccount
		if acct == "" {
			continue
		}
		tok, err := tokens.Token(acct)
		if err != nil {
			s.Warnings = append(s.Warnings,
				fmt.Sprintf("source %q: token for account %q unavailable: %v", s.Sources[i].Name, acct, err))
			continue
		}
		s.Sources[i].Token = tok
	}
}

func normalizeSource(d domain.SourceDescriptor) domain.SourceDescriptor {
	d.Name = strings.TrimSpace(d.Name)
	d.URL = strings.TrimSpace(d.URL)
	d.Company = strings.TrimSpace(d.Company)
	d.Category = strings.TrimSpace(d.Category)
	d.Kind = domain.SourceKind(strings.ToLower(strings.TrimSpace(string(d.Kind))))
	d.PathPrefix = strings.TrimSpace(d.PathPrefix)
	d.TokenAccount = strings.TrimSpace(d.TokenAccount)

	markers := d.ClosedMarkers[:0:0]
	for _, m := range d.ClosedMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	d.ClosedMarkers = markers
	return d
}

func sourceProblem(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field(), describe(fe)))
	}
	return strings.Join(parts, ", ")
}
