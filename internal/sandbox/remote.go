package sandbox

import (
	"context"
	"fmt"
)

// RemoteConfig describes a managed sandbox control plane.
type RemoteConfig struct {
	APIURL string `json:"api_url" yaml:"api_url"`
	APIKey string `json:"api_key" yaml:"api_key"`
	Target string `json:"target" yaml:"target"`
}

// RemoteProvider is the managed-backend variant of Provider. No control
// plane client exists yet, so construction always fails with
// ErrRemoteUnavailable instead of falling back to local execution.
type RemoteProvider struct {
	cfg RemoteConfig
}

// NewRemoteProvider always returns ErrRemoteUnavailable.
func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%w: api_url is not configured", ErrRemoteUnavailable)
	}
	return nil, fmt.Errorf("%w: no client for %s", ErrRemoteUnavailable, cfg.APIURL)
}

var _ Provider = (*RemoteProvider)(nil)

func (p *RemoteProvider) unavailable(op string) error {
	return fmt.Errorf("%s on %s: %w", op, p.cfg.APIURL, ErrRemoteUnavailable)
}

func (p *RemoteProvider) Create(context.Context, CreateRequest) (*Sandbox, error) {
	return nil, p.unavailable("create")
}

func (p *RemoteProvider) Get(context.Context, string) (*Sandbox, error) {
	return nil, p.unavailable("get")
}

func (p *RemoteProvider) List(context.Context) ([]*Sandbox, error) {
	return nil, p.unavailable("list")
}

func (p *RemoteProvider) Start(context.Context, string) error { return p.unavailable("start") }
func (p *RemoteProvider) Stop(context.Context, string) error  { return p.unavailable("stop") }
func (p *RemoteProvider) Delete(context.Context, string) error {
	return p.unavailable("delete")
}

func (p *RemoteProvider) Exec(context.Context, string, ExecRequest) (*ExecResult, error) {
	return nil, p.unavailable("exec")
}

func (p *RemoteProvider) ReadFile(context.Context, string, string) ([]byte, error) {
	return nil, p.unavailable("read file")
}

func (p *RemoteProvider) WriteFile(context.Context, string, string, []byte, WriteOptions) error {
	return p.unavailable("write file")
}

func (p *RemoteProvider) ListFiles(context.Context, string, string) ([]FileEntry, error) {
	return nil, p.unavailable("list files")
}

func (p *RemoteProvider) Mkdirs(context.Context, string, string) error {
	return p.unavailable("mkdirs")
}

func (p *RemoteProvider) GitClone(context.Context, string, CloneOptions) error {
	return p.unavailable("git clone")
}

func (p *RemoteProvider) GitStatus(context.Context, string, string) (string, error) {
	return "", p.unavailable("git status")
}

func (p *RemoteProvider) GitDiff(context.Context, string, string) (string, error) {
	return "", p.unavailable("git diff")
}

func (p *RemoteProvider) GitCheckoutNewBranch(context.Context, string, string, string) error {
	return p.unavailable("git checkout")
}

func (p *RemoteProvider) GitCommit(context.Context, string, string, string) (string, error) {
	return "", p.unavailable("git commit")
}

func (p *RemoteProvider) GitPush(context.Context, string, PushOptions) error {
	return p.unavailable("git push")
}

func (p *RemoteProvider) PreviewLink(context.Context, string, int) (string, error) {
	return "", p.unavailable("preview link")
}
