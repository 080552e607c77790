package sandbox

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by New.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Local   LocalConfig
	Remote  RemoteConfig
}

// New builds the provider named by opts.Backend. An empty backend means
// local. A remote backend that cannot be built is an error; New never
// substitutes the local backend for it.
func New(opts Options, logger *slog.Logger) (Provider, error) {
	switch opts.Backend {
	case "", BackendLocal:
		return NewLocalProvider(opts.Local, logger)
	case BackendRemote:
		p, err := NewRemoteProvider(opts.Remote)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown sandbox backend %q", ErrInvalidArgument, opts.Backend)
	}
}
