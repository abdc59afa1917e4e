package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redacted replaces secret values in redacted output.
const Redacted = "[REDACTED]"

// Field names whose values are always redacted, matched case-insensitively
// as substrings of the key.
var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey",
	"auth", "credential", "private_key",
}

// Fallback string-level patterns, applied after the gitleaks pass (and alone
// when the detector failed to load). Replacements never re-match any pattern
// or gitleaks rule, which keeps redaction idempotent.
var fallbackSecretPatterns = []string{
	// AWS access key ids
	`\b(?:AKIA|ASIA|ABIA|ACCA)[0-9A-Z]{16}\b`,
	// Common API key prefixes (sk-..., ghp_..., xoxb-...)
	`\bsk-[A-Za-z0-9_-]{16,}\b`,
	`\bgh[pousr]_[A-Za-z0-9_]{36,}\b`,
	`\bxox[baprs]-[0-9A-Za-z-]{10,}\b`,
	// Private key headers
	`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
}

// bearerPattern and userinfoPattern need replacement templates that preserve
// the surrounding syntax, so they are handled separately.
var (
	bearerPattern   = regexp.MustCompile(`(?i)(authorization:\s*bearer\s+|bearer\s+)[A-Za-z0-9._~+/=-]+`)
	userinfoPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s:@]+:[^/\s@]+@`)
)

// Redactor substitutes secrets in strings and structured values before they
// reach the audit log, bash output or any other consumer. Detection runs in
// two phases: the gitleaks rule set (200+ curated patterns) when available,
// then the compiled regexes. Safe for concurrent use once built.
type Redactor struct {
	detector *detect.Detector // nil when the gitleaks config failed to load
	patterns []*regexp.Regexp
}

// NewRedactor builds the detector and compiles the fallback patterns plus
// any extras from config. A gitleaks load failure degrades to regex-only
// redaction rather than failing construction.
func NewRedactor(extra []string) (*Redactor, error) {
	r := &Redactor{}

	detector, err := newGitleaksDetector()
	if err != nil {
		slog.Warn("redact.gitleaks_unavailable", "error", err)
	} else {
		r.detector = detector
	}

	for _, p := range fallbackSecretPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// newGitleaksDetector loads the gitleaks default rule set. The bundled
// config is TOML, so it goes through viper the same way the gitleaks CLI
// loads it.
func newGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(gitleaksconfig.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("read gitleaks config: %w", err)
	}

	var vc gitleaksconfig.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("unmarshal gitleaks config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("translate gitleaks config: %w", err)
	}

	return detect.NewDetector(cfg), nil
}

// String substitutes every secret match in s. Idempotent: the replacement
// text matches neither the gitleaks rules nor any pattern.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}

	if r.detector != nil {
		findings := r.detector.Detect(detect.Fragment{Raw: s})
		for _, finding := range findings {
			if finding.Secret == "" {
				continue
			}
			s = strings.ReplaceAll(s, finding.Secret, Redacted)
		}
	}

	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, Redacted)
	}
	s = bearerPattern.ReplaceAllString(s, "${1}"+Redacted)
	s = userinfoPattern.ReplaceAllString(s, "${1}"+Redacted+"@")
	return s
}

// Value walks maps and slices, replacing the whole value of any field whose
// key looks sensitive and scrubbing every other string. The input is not
// mutated.
func (r *Redactor) Value(v any) any {
	switch val := v.(type) {
	case string:
		return r.String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = r.Value(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = r.Value(inner)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}
