package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"goftp/util"
)

// ReadPassword reads a secret from the terminal without echo.  Tests
// replace it.
var ReadPassword = util.PromptPassword

// defaultKeyNames are tried under ~/.ssh when nothing was configured.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// authMethod is one way of proving our identity to the jump host, named
// for log messages.
type authMethod struct {
	name   string
	method ssh.AuthMethod
}

// BuildAuthMethods assembles the SSH authentication methods to offer the
// jump host, in order: key file, agent, password.  With nothing
// configured the agent and the usual key files are tried.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	chain, err := authChain(cfg)
	if err != nil {
		return nil, err
	}
	methods := make([]ssh.AuthMethod, len(chain))
	for i, a := range chain {
		methods[i] = a.method
	}
	return methods, nil
}

func authChain(cfg *SSHConfig) ([]authMethod, error) {
	var chain []authMethod

	if cfg.KeyPath != "" {
		m, err := keyFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		chain = append(chain, authMethod{"publickey(" + filepath.Base(cfg.KeyPath) + ")", m})
	}

	if cfg.UseAgent {
		m, err := agentSigners()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		chain = append(chain, authMethod{"agent", m})
	}

	switch {
	case cfg.Password != "":
		chain = append(chain, authMethod{"password", ssh.Password(cfg.Password)})
	case cfg.PromptPass:
		pass, err := ReadPassword(fmt.Sprintf("SSH password for %s@%s: ", cfg.User, cfg.Host))
		if err != nil {
			return nil, err
		}
		chain = append(chain, authMethod{"password", ssh.Password(string(pass))})
	}

	if len(chain) == 0 {
		chain = discoverAuth()
	}
	if len(chain) == 0 {
		return nil, errors.New("no SSH credentials found; " +
			"use --ssh-key, --ssh-password, or --ssh-agent")
	}
	return chain, nil
}

func authNames(chain []authMethod) string {
	names := make([]string, len(chain))
	for i, a := range chain {
		names[i] = a.name
	}
	return strings.Join(names, ", ")
}

// ── credential sources ───────────────────────────────────────────────

// keyFile loads a private key, asking for the passphrase if it is
// encrypted.
func keyFile(path string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		pass, perr := ReadPassword(fmt.Sprintf("Enter passphrase for %s: ", path))
		if perr != nil {
			return nil, perr
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func agentSigners() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// discoverAuth offers whatever is available without configuration:
// a running agent and unencrypted default key files.
func discoverAuth() []authMethod {
	var chain []authMethod
	if m, err := agentSigners(); err == nil {
		chain = append(chain, authMethod{"agent", m})
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return chain
	}
	for _, name := range defaultKeyNames {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue // encrypted keys need --ssh-key
		}
		chain = append(chain, authMethod{"publickey(" + name + ")", ssh.PublicKeys(signer)})
	}
	return chain
}

// ── host-key verification ────────────────────────────────────────────

// verifyHostKey returns the host key check for the jump host.  Without
// StrictHostKey any key is accepted.
func verifyHostKey(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // user opted out of host key checking
		return ssh.InsecureIgnoreHostKey(), nil
	}

	file := cfg.KnownHosts
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}

	check, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", file, err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var ke *knownhosts.KeyError
		if errors.As(err, &ke) && len(ke.Want) == 0 {
			return fmt.Errorf("%s is not in %s (%s key %s)",
				hostname, file, key.Type(), ssh.FingerprintSHA256(key))
		}
		return err
	}, nil
}
