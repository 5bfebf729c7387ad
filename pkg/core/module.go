package core

import (
	t_network "github.com/meta-node-blockchain/benor/types/network"
)

// Module is a component that serves commands and can be started and
// stopped by its host process.
type Module interface {
	// CommandHandlers maps each command name to its handler.
	CommandHandlers() map[string]func(t_network.Request) error
	Start() error
	Stop()
}
