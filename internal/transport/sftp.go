package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sanchez-kim/obj-viewer/internal/address"
	"github.com/sanchez-kim/obj-viewer/internal/types"
)

// SFTPConfig describes the SSH server holding the dataset.
type SFTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	// KeyFile defaults to ~/.ssh/id_rsa.
	KeyFile string `mapstructure:"key_file"`
	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string `mapstructure:"known_hosts"`
	// InsecureIgnoreHostKey turns host key checking off.
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// SFTPFetcher reads frames over an SFTP session.
type SFTPFetcher struct {
	conn   *ssh.Client
	client *sftp.Client
	root   string
	layout *address.Layout
	addr   string
}

// DialSFTP opens the SSH connection and the SFTP subsystem. A handshake
// failure is returned as is; the caller aborts the run.
func DialSFTP(ctx context.Context, cfg SFTPConfig, root string, layout *address.Layout) (*SFTPFetcher, error) {
	if cfg.Host == "" {
		return nil, errors.New("sftp transport: host is required")
	}
	if cfg.User == "" {
		return nil, errors.New("sftp transport: user is required")
	}

	keyFile := cfg.KeyFile
	if keyFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate ssh key: %w", err)
		}
		keyFile = filepath.Join(home, ".ssh", "id_rsa")
	}
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", keyFile, err)
	}

	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	conn, err := withContext(ctx, func() (*ssh.Client, error) {
		return ssh.Dial("tcp", addr, &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         timeout,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ssh connect %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp subsystem: %w", err)
	}
	return &SFTPFetcher{conn: conn, client: client, root: root, layout: layout, addr: addr}, nil
}

// NewSFTPWithClient wraps an established SFTP session. Close only ends the
// session.
func NewSFTPWithClient(client *sftp.Client, root string, layout *address.Layout) *SFTPFetcher {
	return &SFTPFetcher{client: client, root: root, layout: layout, addr: "client"}
}

// hostKeyCallback checks host keys against cfg.KnownHosts, falling back to
// ~/.ssh/known_hosts. A missing file is an error unless checking is
// explicitly turned off.
func hostKeyCallback(cfg SFTPConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHosts
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts (set sftp.known_hosts or sftp.insecure_ignore_host_key): %w", err)
	}
	return cb, nil
}

func (s *SFTPFetcher) Name() string { return "sftp " + s.addr + ":" + s.root }

// Close ends the SFTP session and the SSH connection.
func (s *SFTPFetcher) Close() error {
	err := s.client.Close()
	if s.conn == nil {
		return err
	}
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *SFTPFetcher) Fetch(ctx context.Context, f address.Frame) (types.FramePair, error) {
	return fetchPair(ctx, s.layout, f, s.get)
}

// List reads the sentence's mesh and metadata directories and pairs them.
func (s *SFTPFetcher) List(ctx context.Context, sen address.Sentence) (Listing, error) {
	return listSentence(ctx, s.layout, sen, s.list)
}

func (s *SFTPFetcher) get(ctx context.Context, rel string) ([]byte, error) {
	data, err := withContext(ctx, func() ([]byte, error) {
		f, err := s.client.Open(path.Join(s.root, rel))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return data, err
}

func (s *SFTPFetcher) list(ctx context.Context, prefix string) ([]string, error) {
	names, err := withContext(ctx, func() ([]string, error) {
		var names []string
		w := s.client.Walk(path.Join(s.root, prefix))
		for w.Step() {
			if err := w.Err(); err != nil {
				return nil, err
			}
			if !w.Stat().IsDir() {
				names = append(names, path.Base(w.Path()))
			}
		}
		return names, nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return names, err
}
