package lobby

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"skirmish/lobby/logging"
)

// CommandContext carries the metadata a handler needs about who issued a
// command and from where.
type CommandContext struct {
	// Sender is the member the command is attributed to.
	Sender MemberID
	// Local is true when the command was typed locally; false when it
	// arrived over session chat from a peer.
	Local bool
	// IsHost is true when the sender owns the session.
	IsHost bool
}

// HandlerFunc executes a command. The returned string is shown in the local
// transcript; a non-nil error surfaces the command's usage line instead.
type HandlerFunc func(ctx CommandContext, args []string) (string, error)

// ExtensionFunc lets embedders intercept a command before its built-in
// handler runs. Returning handled=true suppresses the built-in.
type ExtensionFunc func(ctx CommandContext, args []string) (handled bool, reply string)

// Command describes one registered slash command.
type Command struct {
	Name     string
	HostOnly bool
	// InLobby and InMatch gate which phase the command may run in.
	InLobby bool
	InMatch bool
	// Broadcast relays the raw command line over session chat when the host
	// executes it locally, so every client applies the same effect.
	Broadcast bool
	Help      string
	Usage     string
	Handler   HandlerFunc
}

// Dispatch outcome for the chat layer.
type commandResult struct {
	reply     string
	broadcast bool
}

// Dispatcher owns the command registry and runs the full dispatch pipeline:
// tokenize, resolve, phase gate, permission gate, handler with panic
// containment.
type Dispatcher struct {
	st         *sessionState
	log        logging.Publisher
	commands   map[string]*Command
	extensions map[string]ExtensionFunc
}

func newDispatcher(st *sessionState, log logging.Publisher) *Dispatcher {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Dispatcher{
		st:         st,
		log:        log,
		commands:   make(map[string]*Command),
		extensions: make(map[string]ExtensionFunc),
	}
}

// Register adds a command. Names are case-insensitive and must be unique.
func (d *Dispatcher) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" {
		return fmt.Errorf("command needs a name")
	}
	name := strings.ToLower(cmd.Name)
	if _, exists := d.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	d.commands[name] = cmd
	return nil
}

// SetExtension installs an interceptor for the named command. Passing nil
// removes it.
func (d *Dispatcher) SetExtension(name string, fn ExtensionFunc) {
	name = strings.ToLower(name)
	if fn == nil {
		delete(d.extensions, name)
		return
	}
	d.extensions[name] = fn
}

// Lookup resolves a command by name, case-insensitively.
func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	cmd, ok := d.commands[strings.ToLower(name)]
	return cmd, ok
}

// Names returns registered command names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one raw slash command line. Remote commands that fail a gate
// produce no reply; the sender is not here to read it.
func (d *Dispatcher) Dispatch(raw string, sender MemberID, local bool) commandResult {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return commandResult{}
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	cmd, ok := d.Lookup(name)
	if !ok {
		if local {
			return commandResult{reply: fmt.Sprintf("Unknown command %q. Try /help.", name)}
		}
		return commandResult{}
	}
	if d.st.Phase() == PhaseLobby && !cmd.InLobby {
		return d.localOnly(local, fmt.Sprintf("/%s is not available in the lobby.", cmd.Name))
	}
	if d.st.Phase() == PhaseMatch && !cmd.InMatch {
		return d.localOnly(local, fmt.Sprintf("/%s is not available during a match.", cmd.Name))
	}
	// Host-only means host-only no matter where the line came from. A
	// remote line claiming to be a host command is only honored when the
	// sender actually owns the session.
	if cmd.HostOnly && sender != d.st.Owner {
		return d.localOnly(local, fmt.Sprintf("/%s can only be used by the host.", cmd.Name))
	}

	ctx := CommandContext{Sender: sender, Local: local, IsHost: sender == d.st.Owner}
	if ext, hasExt := d.extensions[name]; hasExt {
		if handled, reply := ext(ctx, args); handled {
			return commandResult{reply: reply}
		}
	}

	reply, err := d.run(cmd, ctx, args)
	if err != nil {
		return d.localOnly(local, fmt.Sprintf("%s\nUsage: %s", err, cmd.Usage))
	}
	d.log.Publish(context.Background(), logging.Event{
		Type:     "command_executed",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCommand,
		Actor:    logging.EntityRef{ID: string(sender), Kind: logging.EntityKindMember},
		Payload:  map[string]any{"command": cmd.Name, "local": local},
	})
	return commandResult{reply: reply, broadcast: cmd.Broadcast && local && ctx.IsHost}
}

// run invokes the handler with panic containment so a bad command cannot
// take down the tick loop.
func (d *Dispatcher) run(cmd *Command, ctx CommandContext, args []string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Publish(context.Background(), logging.Event{
				Type:     "command_panicked",
				Severity: logging.SeverityError,
				Category: logging.CategoryCommand,
				Payload:  map[string]any{"command": cmd.Name, "panic": fmt.Sprint(r)},
			})
			reply = ""
			err = fmt.Errorf("/%s failed", cmd.Name)
		}
	}()
	return cmd.Handler(ctx, args)
}

func (d *Dispatcher) localOnly(local bool, reply string) commandResult {
	if local {
		return commandResult{reply: reply}
	}
	return commandResult{}
}

// builtinDeps bundles what the built-in commands need from the engine.
type builtinDeps struct {
	st         *sessionState
	dir        Directory
	membership *Membership
	sim        HostSimulation
	// setNameTags records the host's name-tag choice for replication.
	setNameTags func(enabled, teamOnly bool)
	// forceLeave is invoked on a remote ban that targets the local member.
	forceLeave func(reason string)
}

// registerBuiltins installs the stock command set.
func registerBuiltins(d *Dispatcher, deps builtinDeps) {
	mustRegister := func(cmd *Command) {
		if err := d.Register(cmd); err != nil {
			panic(err)
		}
	}

	mustRegister(&Command{
		Name:    "help",
		InLobby: true,
		InMatch: true,
		Help:    "List commands, or show help for one command.",
		Usage:   "/help [command]",
		Handler: func(ctx CommandContext, args []string) (string, error) {
			if !ctx.Local {
				return "", nil
			}
			if len(args) == 0 {
				return "Available commands: /" + strings.Join(d.Names(), " /"), nil
			}
			cmd, ok := d.Lookup(args[0])
			if !ok {
				return "", fmt.Errorf("no command named %q", args[0])
			}
			return fmt.Sprintf("%s\n%s", cmd.Usage, cmd.Help), nil
		},
	})

	// Ban replication happens inside Membership.Ban via its announce hook,
	// so the command itself is not marked Broadcast.
	mustRegister(&Command{
		Name:     "ban",
		HostOnly: true,
		InLobby:  true,
		InMatch:  true,
		Help:     "Ban a member by id or name. The ban lasts for this session.",
		Usage:    "/ban <member>",
		Handler: func(ctx CommandContext, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("expected one target")
			}
			if ctx.Local {
				target, ok := deps.membership.ResolveTarget(args[0])
				if !ok {
					return "", fmt.Errorf("no member matching %q", args[0])
				}
				if err := deps.membership.Ban(target); err != nil {
					return "", err
				}
				return fmt.Sprintf("Banned %s.", deps.dir.DisplayName(target)), nil
			}
			// Remote ban from the host: enforce it against ourselves.
			if args[0] == string(deps.st.Local) {
				if deps.forceLeave != nil {
					deps.forceLeave("banned by the host")
				}
			}
			return "", nil
		},
	})

	mustRegister(&Command{
		Name:     "unban",
		HostOnly: true,
		InLobby:  true,
		InMatch:  true,
		Help:     "Lift a ban placed with /ban.",
		Usage:    "/unban <member>",
		Handler: func(ctx CommandContext, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("expected one target")
			}
			if !ctx.Local {
				return "", nil
			}
			target := MemberID(args[0])
			if resolved, ok := deps.membership.ResolveTarget(args[0]); ok {
				target = resolved
			}
			if err := deps.membership.Unban(target); err != nil {
				return "", err
			}
			return fmt.Sprintf("Unbanned %s.", args[0]), nil
		},
	})

	mustRegister(&Command{
		Name:      "kill",
		HostOnly:  true,
		InMatch:   true,
		Broadcast: true,
		Help:      "Kill the named actor in the running match.",
		Usage:     "/kill <actor>",
		Handler: func(ctx CommandContext, args []string) (string, error) {
			if len(args) == 0 {
				return "", fmt.Errorf("expected an actor name")
			}
			name := strings.Join(args, " ")
			if err := deps.sim.KillActor(name); err != nil {
				if ctx.Local {
					return "", err
				}
				return "", nil
			}
			if ctx.Local {
				return fmt.Sprintf("Killed %s.", name), nil
			}
			return "", nil
		},
	})

	mustRegister(&Command{
		Name:     "tags",
		HostOnly: true,
		InLobby:  true,
		InMatch:  true,
		Help:     "Toggle name tags. With teamonly, tags show for teammates only.",
		Usage:    "/tags <on|off> [teamonly]",
		Handler: func(ctx CommandContext, args []string) (string, error) {
			if len(args) == 0 {
				return "", fmt.Errorf("expected on or off")
			}
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return "", fmt.Errorf("expected on or off, got %q", args[0])
			}
			teamOnly := len(args) > 1 && strings.EqualFold(args[1], "teamonly")
			deps.setNameTags(enabled, teamOnly)
			if !ctx.Local {
				return "", nil
			}
			if !enabled {
				return "Name tags disabled.", nil
			}
			if teamOnly {
				return "Name tags enabled for teammates only.", nil
			}
			return "Name tags enabled.", nil
		},
	})
}
