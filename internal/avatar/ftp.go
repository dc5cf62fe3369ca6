package avatar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

const defaultFTPPort = 21

// FTPSource reads avatars from a remote Flarum host over FTP. The
// connection is opened on first use and reused.
type FTPSource struct {
	host     string
	port     int
	username string
	password string
	dir      string
	timeout  time.Duration
	log      logger.Logger

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// NewFTPSource creates an FTP avatar source.
func NewFTPSource(settings *conf.AvatarSettings, log logger.Logger) *FTPSource {
	port := settings.Port
	if port == 0 {
		port = defaultFTPPort
	}
	return &FTPSource{
		host:     settings.Host,
		port:     port,
		username: settings.Username,
		password: settings.Password,
		dir:      settings.Dir,
		timeout:  settings.Timeout,
		log:      log,
	}
}

// Name returns "ftp".
func (s *FTPSource) Name() string { return "ftp" }

// connect must be called with s.mu held.
func (s *FTPSource) connect(ctx context.Context) (*ftp.ServerConn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if s.timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(s.timeout))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp: connection failed: %w", err)
	}

	if s.username != "" {
		if err := conn.Login(s.username, s.password); err != nil {
			if quitErr := conn.Quit(); quitErr != nil {
				s.log.Debug("ftp quit after login error failed", logger.Error(quitErr))
			}
			return nil, fmt.Errorf("ftp: login failed: %w", err)
		}
	}

	s.log.Debug("ftp connected", logger.String("addr", addr))
	s.conn = conn
	return conn, nil
}

// Open downloads the avatar file. The file is buffered in memory so the
// control connection is free for the next request once Open returns.
func (s *FTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	file, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connect(ctx)
	if err != nil {
		return nil, avatarError(err, s.Name(), "connect", file)
	}

	resp, err := conn.Retr(path.Join(s.dir, file))
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
			return nil, ErrNotFound
		}
		s.closeLocked()
		return nil, avatarError(err, s.Name(), "retr", file)
	}

	data, readErr := io.ReadAll(resp)
	closeErr := resp.Close()
	if readErr != nil || closeErr != nil {
		s.closeLocked()
		return nil, avatarError(errors.Join(readErr, closeErr), s.Name(), "read", file)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Close ends the FTP session.
func (s *FTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *FTPSource) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Quit()
	s.conn = nil
	return err
}
