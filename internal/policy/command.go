package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Dangerous command shapes denied regardless of the configured blocklists.
// These complement, not replace, workspace confinement: a command that slips
// past them still runs with the sanitized environment inside the workspace.
var dangerousPatterns = []*regexp.Regexp{
	// Destructive file operations
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+(/|~|\$HOME)`),
	regexp.MustCompile(`\brm\s+.*--no-preserve-root`),
	regexp.MustCompile(`\bdd\s+if=/dev/`),
	regexp.MustCompile(`\b(mkfs|fdisk|wipefs)\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// Remote code execution
	regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bbase64\s+(-d|--decode)\b.*\|\s*(ba)?sh\b`),

	// Reverse shells
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[ec]\s*/bin/`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\bmkfifo\b`),

	// Privilege escalation and system control
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),

	// Library injection
	regexp.MustCompile(`\b(LD_PRELOAD|DYLD_INSERT_LIBRARIES)\s*=`),
}

// Network-reaching commands rejected when the policy disallows network use.
var networkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(curl|wget)\s`),
	regexp.MustCompile(`\b(nc|ncat|netcat|socat)\s`),
	regexp.MustCompile(`\b(ssh|scp|sftp|rsync)\b.*@`),
}

// CheckCommand applies the command rules in order: configured substrings,
// configured patterns, the built-in dangerous shapes, then the network gate.
func (p *Policy) CheckCommand(command string) error {
	lowered := strings.ToLower(command)
	for _, deny := range p.CommandDeny {
		if deny != "" && strings.Contains(lowered, strings.ToLower(deny)) {
			return p.blockCommand(command, "substring", deny)
		}
	}
	for _, re := range p.CommandDenyPatterns {
		if re.MatchString(command) {
			return p.blockCommand(command, "pattern", re.String())
		}
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(command) {
			return p.blockCommand(command, "dangerous", re.String())
		}
	}
	if !p.AllowNetwork {
		for _, re := range networkPatterns {
			if re.MatchString(command) {
				return p.blockCommand(command, "network", re.String())
			}
		}
	}
	return nil
}

func (p *Policy) blockCommand(command, rule, match string) error {
	slog.Warn("security.command_blocked", "rule", rule, "match", match)
	return &Violation{
		Op:     "command",
		Target: command,
		Rule:   rule,
		Reason: fmt.Sprintf("command matches blocked %s rule (%s)", rule, match),
	}
}
