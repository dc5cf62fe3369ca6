package avatar

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

const defaultSFTPPort = 22

// SFTPSource reads avatars from a remote Flarum host over SFTP. The
// connection is opened on first use and reused.
type SFTPSource struct {
	host       string
	port       int
	username   string
	password   string
	keyFile    string
	knownHosts string
	dir        string
	timeout    time.Duration
	log        logger.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

// NewSFTPSource creates an SFTP avatar source.
func NewSFTPSource(settings *conf.AvatarSettings, log logger.Logger) *SFTPSource {
	port := settings.Port
	if port == 0 {
		port = defaultSFTPPort
	}
	return &SFTPSource{
		host:       settings.Host,
		port:       port,
		username:   settings.Username,
		password:   settings.Password,
		keyFile:    settings.KeyFile,
		knownHosts: settings.KnownHosts,
		dir:        settings.Dir,
		timeout:    settings.Timeout,
		log:        log,
	}
}

// Name returns "sftp".
func (s *SFTPSource) Name() string { return "sftp" }

func (s *SFTPSource) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:    s.username,
		Timeout: s.timeout,
	}

	if s.knownHosts != "" {
		callback, err := knownhosts.New(s.knownHosts)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to load known hosts: %w", err)
		}
		config.HostKeyCallback = callback
	} else {
		s.log.Warn("sftp host key is not verified, set avatar.knownhosts to enable checks",
			logger.String("host", s.host))
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via avatar.knownhosts
	}

	switch {
	case s.keyFile != "":
		key, err := os.ReadFile(s.keyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case s.password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(s.password)}
	default:
		return nil, fmt.Errorf("sftp: no authentication method provided")
	}
	return config, nil
}

// connect must be called with s.mu held.
func (s *SFTPSource) connect(ctx context.Context) (*sftp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := net.Dialer{Timeout: s.timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sftp: failed to connect: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("sftp: ssh handshake failed: %w", err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp: failed to create client: %w", err)
	}

	s.log.Debug("sftp connected", logger.String("addr", addr))
	s.conn = conn
	s.client = client
	return client, nil
}

// Open fetches the avatar file.
func (s *SFTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	file, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect(ctx)
	if err != nil {
		return nil, avatarError(err, s.Name(), "connect", file)
	}

	f, err := client.Open(path.Join(s.dir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		// Drop the connection so the next avatar reconnects.
		s.closeLocked()
		return nil, avatarError(err, s.Name(), "open", file)
	}
	return f, nil
}

// Close closes the SFTP session and SSH connection.
func (s *SFTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SFTPSource) closeLocked() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	return errors.Join(errs...)
}
