// Package cli implements zpass's command-line subcommands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"
	"github.com/zarlcorp/zpass/internal/settings"
	"github.com/zarlcorp/zpass/internal/wallet"
	"golang.org/x/term"
)

// DataDir returns the default data directory for zpass.
func DataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return d + "/zpass"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zpass"
	}
	return home + "/.local/share/zpass"
}

// ReadPassword prompts for a password on stderr and reads it without echo.
func ReadPassword(prompt string, w io.Writer) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// ReadNewPassword prompts for a new password with confirmation.
func ReadNewPassword(w io.Writer) (string, error) {
	pass, err := ReadPassword("master password: ", w)
	if err != nil {
		return "", err
	}
	confirm, err := ReadPassword("confirm password: ", w)
	if err != nil {
		return "", err
	}
	if pass != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return pass, nil
}

// IsFirstRun checks whether the store has been initialized.
func IsFirstRun(dir string) bool {
	_, err := os.Stat(dir + "/salt")
	return err != nil
}

// OpenStore prompts for a password and opens the store, returning both the
// store and the settings collection.
func OpenStore(dir string) (*zstore.Store, *settings.Collection, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	var pass string
	var err error
	if IsFirstRun(dir) {
		pass, err = ReadNewPassword(os.Stderr)
	} else {
		pass, err = ReadPassword("master password: ", os.Stderr)
	}
	if err != nil {
		return nil, nil, err
	}

	fsys := zfilesystem.NewOSFileSystem(dir)
	s, err := zstore.Open(fsys, []byte(pass))
	if err != nil {
		return nil, nil, err
	}

	col, err := settings.Open(s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return s, col, nil
}

// openWallet loads the configured wallet. Keystore passphrases are read
// from the terminal.
func openWallet(col *settings.Collection, a wallet.Approver) (*wallet.Wallet, error) {
	w := settings.Load[settings.Wallet](col, settings.KeyWallet)
	if !w.Configured() {
		return nil, fmt.Errorf("no wallet configured: run zpass and open settings")
	}
	return w.Open(func() (string, error) {
		return ReadPassword("keystore passphrase: ", os.Stderr)
	}, a)
}

// approver asks on the terminal unless --yes was given.
func approver(args []string) wallet.Approver {
	if hasFlag(args, "--yes") {
		return wallet.AutoApprove
	}
	return wallet.NewTerminalApprover(os.Stdin, os.Stderr)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if strings.EqualFold(a, flag) {
			return true
		}
	}
	return false
}

// flagValue returns the value of a "--flag value" or "--flag=value" pair.
func flagValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if name, val, ok := strings.Cut(a, "="); ok && strings.EqualFold(name, flag) {
			return val, true
		}
		if strings.EqualFold(a, flag) && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// positional returns the first argument that is neither a flag nor a flag
// value.
func positional(args []string, valued ...string) string {
	skip := false
	for _, a := range args {
		if skip {
			skip = false
			continue
		}
		if strings.HasPrefix(a, "-") {
			for _, v := range valued {
				if strings.EqualFold(a, v) {
					skip = true
				}
			}
			continue
		}
		return a
	}
	return ""
}
