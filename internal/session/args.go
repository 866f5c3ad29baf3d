package session

import (
	"fmt"
	"strconv"
)

// AttackMode represents hashcat attack modes
type AttackMode int

const (
	AttackModeStraight           AttackMode = 0 // Dictionary attack
	AttackModeCombination        AttackMode = 1 // Combination attack
	AttackModeBruteForce         AttackMode = 3 // Brute-force attack
	AttackModeHybridWordlistMask AttackMode = 6 // Hybrid Wordlist + Mask
	AttackModeHybridMaskWordlist AttackMode = 7 // Hybrid Mask + Wordlist
)

// Config describes one start request. Exactly one of the normal fields
// (HashFile plus mode-specific inputs), CustomArgs, or Restore selects how
// the worker argv is built.
type Config struct {
	Name       string     `json:"name"`
	HashType   int        `json:"hash_type"`
	AttackMode AttackMode `json:"attack_mode"`
	HashFile   string     `json:"hash_file"`
	Wordlists  []string   `json:"wordlists,omitempty"`
	Rules      []string   `json:"rules,omitempty"`
	Mask       string     `json:"mask,omitempty"`

	// ExtraArgs are appended to the runtime flag block verbatim
	ExtraArgs []string `json:"extra_args,omitempty"`

	// CustomArgs replaces the whole generated argv; the session id and
	// private potfile flags are still enforced
	CustomArgs []string `json:"custom_args,omitempty"`

	// Restore resumes an existing checkpoint; SessionID selects it, or the
	// most recent checkpoint is used when empty
	Restore   bool   `json:"restore,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// BinaryPath overrides the configured worker executable
	BinaryPath string `json:"binary_path,omitempty"`
}

// buildArgs builds the worker argument vector. The mapping is
// deterministic: mode and algorithm flags first, then runtime flags, the
// supervised session identity, the target hash file, and finally the
// mode-specific positional arguments.
func buildArgs(cfg Config, sessionID, shadowPotfile string, statusTimer int) ([]string, error) {
	if cfg.Restore {
		return []string{"--session", sessionID, "--restore"}, nil
	}

	if len(cfg.CustomArgs) > 0 {
		args := append([]string{}, cfg.CustomArgs...)
		return append(args, "--session", sessionID, "--potfile-path", shadowPotfile), nil
	}

	if cfg.HashFile == "" {
		return nil, fmt.Errorf("no hash file provided")
	}

	args := []string{
		"-m", strconv.Itoa(cfg.HashType),
		"-a", strconv.Itoa(int(cfg.AttackMode)),
		"--status",
		"--status-timer", strconv.Itoa(statusTimer),
		"--potfile-path", shadowPotfile,
		"--session", sessionID,
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, cfg.HashFile)

	switch cfg.AttackMode {
	case AttackModeStraight:
		if len(cfg.Wordlists) == 0 {
			return nil, fmt.Errorf("dictionary attack requires at least one wordlist")
		}
		args = append(args, cfg.Wordlists...)
		for _, rule := range cfg.Rules {
			args = append(args, "-r", rule)
		}

	case AttackModeCombination:
		if len(cfg.Wordlists) < 2 {
			return nil, fmt.Errorf("combination attack requires two wordlists")
		}
		args = append(args, cfg.Wordlists[0], cfg.Wordlists[1])

	case AttackModeBruteForce:
		if cfg.Mask == "" {
			return nil, fmt.Errorf("brute-force attack requires a mask")
		}
		args = append(args, cfg.Mask)

	case AttackModeHybridWordlistMask:
		if len(cfg.Wordlists) == 0 || cfg.Mask == "" {
			return nil, fmt.Errorf("hybrid attack requires a wordlist and a mask")
		}
		args = append(args, cfg.Wordlists[0], cfg.Mask)

	case AttackModeHybridMaskWordlist:
		if len(cfg.Wordlists) == 0 || cfg.Mask == "" {
			return nil, fmt.Errorf("hybrid attack requires a mask and a wordlist")
		}
		args = append(args, cfg.Mask, cfg.Wordlists[0])

	default:
		return nil, fmt.Errorf("unsupported attack mode: %d", cfg.AttackMode)
	}

	return args, nil
}
