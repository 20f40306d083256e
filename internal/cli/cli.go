// Package cli parses audiomon command lines.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/audiomon/internal/device"
)

type Command string

const (
	CommandRun         Command = "run"
	CommandStatus      Command = "status"
	CommandEvaluate    Command = "evaluate"
	CommandDevices     Command = "devices"
	CommandSwitch      Command = "switch"
	CommandReload      Command = "reload"
	CommandCheckConfig Command = "check-config"
	CommandInitConfig  Command = "init-config"
	CommandDoctor      Command = "doctor"
	CommandVersion     Command = "version"
	CommandHelp        Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:         {},
	CommandStatus:      {},
	CommandEvaluate:    {},
	CommandDevices:     {},
	CommandSwitch:      {},
	CommandReload:      {},
	CommandCheckConfig: {},
	CommandInitConfig:  {},
	CommandDoctor:      {},
	CommandVersion:     {},
	CommandHelp:        {},
}

// Parsed is a validated command line. Class is zero when --class was not given.
type Parsed struct {
	Command    Command
	ConfigPath string
	Verbose    bool
	Force      bool
	Class      device.Class
	Device     string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	seenCommand := false

	value := func(i *int, flag string, what string) (string, error) {
		*i++
		if *i >= len(args) || strings.HasPrefix(args[*i], "--") {
			return "", fmt.Errorf("%s requires %s", flag, what)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			return parsed, nil
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
			return parsed, nil
		case "--config":
			path, err := value(&i, arg, "a path")
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = path
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--force":
			parsed.Force = true
		case "--class":
			raw, err := value(&i, arg, "input or output")
			if err != nil {
				return Parsed{}, err
			}
			class, err := device.ParseClass(raw)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Class = class
		case "--device":
			name, err := value(&i, arg, "a device id or name")
			if err != nil {
				return Parsed{}, err
			}
			parsed.Device = name
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}
			if seenCommand {
				return Parsed{}, fmt.Errorf("unexpected argument %q after command %q", arg, parsed.Command)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			seenCommand = true
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	if err := parsed.validate(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

func (p Parsed) validate() error {
	switch p.Command {
	case CommandSwitch:
		if p.Class == 0 {
			return errors.New("switch requires --class")
		}
		if strings.TrimSpace(p.Device) == "" {
			return errors.New("switch requires --device")
		}
	case CommandEvaluate, CommandDevices:
		if p.Device != "" {
			return fmt.Errorf("--device is only valid with switch")
		}
	default:
		if p.Class != 0 || p.Device != "" {
			return fmt.Errorf("--class and --device are not valid with %s", p.Command)
		}
	}
	if p.Force && p.Command != CommandInitConfig {
		return errors.New("--force is only valid with init-config")
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--verbose] <command> [flags]

Commands:
  run            Run the device monitor daemon
  status         Print the daemon's current selections
  evaluate       Re-evaluate priorities now (optionally --class)
  devices        List devices with their rule scores (optionally --class)
  switch         Switch the default device (--class C --device NAME)
  reload         Ask the daemon to reload its config
  check-config   Validate the config file and print warnings
  init-config    Write the default config (--force to overwrite)
  doctor         Run configuration and environment checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH    Config file path (default: $XDG_CONFIG_HOME/audiomon/config.toml)
  --class C        Device class: input or output
  --device NAME    Device id or name for switch
  --force          Overwrite an existing config with init-config
  -v, --verbose    Debug logging, mirrored to stderr
  -h, --help       Show help
  --version        Show version
`, binaryName)
}
