package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

// Command is the subcommand to execute.
type Command int

const (
	None Command = iota
	Analyze
	Deploy
	Init
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Analyze: "analyze",
	Deploy:  "deploy",
	Init:    "init",
	Version: "version",
}

var stringToCommand = util.InvertMap(commandToString)

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'analyze', 'deploy', 'init' or 'version'", s)
}
