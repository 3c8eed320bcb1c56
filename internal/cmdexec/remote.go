package cmdexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type RemoteConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyPath        string
	KnownHostsPath string
	ConnectTimeout time.Duration
}

// Remote runs commands on a host over SSH. Every Execute opens its own
// connection and session.
type Remote struct {
	config RemoteConfig
	logger *log.Entry
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewRemote(cfg RemoteConfig, logger *log.Entry) *Remote {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.KnownHostsPath == "" {
		logger.WithField("host", cfg.Host).Warn("ssh host key verification disabled")
	}
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Remote{config: cfg, logger: logger, dial: d.DialContext}
}

func (r *Remote) Addr() string {
	return net.JoinHostPort(r.config.Host, fmt.Sprint(r.config.Port))
}

func (r *Remote) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if r.config.KeyPath != "" {
		key, err := os.ReadFile(r.config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if r.config.Password != "" {
		auth = append(auth, ssh.Password(r.config.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials configured")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() // #nosec G106
	if r.config.KnownHostsPath != "" {
		cb, err := knownhosts.New(r.config.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.config.ConnectTimeout,
	}, nil
}

func (r *Remote) connect(ctx context.Context) (*ssh.Client, error) {
	cfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := r.Addr()
	conn, err := r.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// The handshake itself does not watch ctx.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(r.config.ConnectTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// Execute runs command in a remote session. Connection, authentication
// and session failures come back as errors; the remote exit status comes
// back as the code.
func (r *Remote) Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return -1, err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() {
		client.Close()
	})
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	runErr := session.Run(command)
	if ctx.Err() != nil {
		return -1, fmt.Errorf("command aborted: %w", context.Cause(ctx))
	}
	if runErr == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(runErr, &missing) {
		return -1, fmt.Errorf("remote command ended without exit status: %w", runErr)
	}
	return -1, fmt.Errorf("remote command: %w", runErr)
}
