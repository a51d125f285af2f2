package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// RemoteSession 一次备份运行独占一条连接，结束或超时必须Close
type RemoteSession interface {
	Run(ctx context.Context, command string) (string, error)
	Fetch(remoteFile, localFile string) error
	Push(localFile, remoteFile string) error
	Close() error
}

type RemoteExecutor interface {
	Dial(ctx context.Context, host string, material SSHMaterial) (RemoteSession, error)
}

type sshExecutor struct {
	dialTimeout    time.Duration
	commandTimeout time.Duration
}

func NewRemoteExecutor(dialTimeout, commandTimeout time.Duration) RemoteExecutor {
	return &sshExecutor{
		dialTimeout:    dialTimeout,
		commandTimeout: commandTimeout,
	}
}

func (e *sshExecutor) Dial(ctx context.Context, host string, material SSHMaterial) (RemoteSession, error) {
	username := material.Username
	if username == "" {
		username = "root"
	}

	var auth []ssh.AuthMethod
	if material.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(material.PrivateKey))
		if err != nil {
			return nil, &CredentialError{Msg: fmt.Sprintf("invalid SSH private key for %s", host), Err: err}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if material.Password != "" {
		auth = append(auth, ssh.Password(material.Password))
	}
	if len(auth) == 0 {
		return nil, &CredentialError{Msg: fmt.Sprintf("no SSH auth material for %s", host)}
	}

	config := &ssh.ClientConfig{
		User:            username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.dialTimeout,
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:22", host)
	}

	log.Printf("[SSH] Connecting to %s@%s", username, addr)

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &CredentialError{Msg: fmt.Sprintf("SSH authentication failed for %s", host), Err: err}
		}
		return nil, &ConnectivityError{Endpoint: host, Err: err}
	}

	log.Printf("[SSH] Connected to %s", host)
	return &sshSession{client: client, commandTimeout: e.commandTimeout}, nil
}

type sshSession struct {
	client         *ssh.Client
	commandTimeout time.Duration
}

func (s *sshSession) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Run 执行远程命令，超时则关闭会话中止命令
func (s *sshSession) Run(ctx context.Context, command string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", &ConnectivityError{Endpoint: s.client.RemoteAddr().String(), Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	log.Printf("[SSH] Executing command: %s", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-runCtx.Done():
		session.Close()
		return "", &ExecutionError{
			Cmd: command,
			Err: fmt.Errorf("command timed out after %s: %w", s.commandTimeout, runCtx.Err()),
		}
	case err := <-done:
		if err != nil {
			return "", &ExecutionError{
				Cmd:    command,
				Output: summarizeOutput(stderr.String()),
				Err:    err,
			}
		}
	}

	return stdout.String(), nil
}

func (s *sshSession) Fetch(remoteFile, localFile string) error {
	log.Printf("[SSH] Downloading %s to %s", remoteFile, localFile)

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer sftpClient.Close()

	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return fmt.Errorf("failed to create local directory: %w", err)
	}

	if _, err := sftpClient.Stat(remoteFile); err != nil {
		return fmt.Errorf("remote file does not exist: %w", err)
	}

	remoteHandle, err := sftpClient.Open(remoteFile)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer remoteHandle.Close()

	localHandle, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer localHandle.Close()

	if _, err := io.Copy(localHandle, remoteHandle); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	return nil
}

func (s *sshSession) Push(localFile, remoteFile string) error {
	log.Printf("[SSH] Uploading %s to %s", localFile, remoteFile)

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	defer sftpClient.Close()

	localHandle, err := os.Open(localFile)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localHandle.Close()

	if err := sftpClient.MkdirAll(filepath.Dir(remoteFile)); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	remoteHandle, err := sftpClient.Create(remoteFile)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteHandle.Close()

	if _, err := io.Copy(remoteHandle, localHandle); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	return nil
}

// summarizeOutput 截断过长的stderr，错误信息里只保留摘要
func summarizeOutput(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > 512 {
		return output[:512] + "..."
	}
	return output
}
