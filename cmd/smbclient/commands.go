package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Command represents a shell command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Category    string
	Paths       bool // arguments complete as remote paths
	Handler     func(ctx context.Context, args []string) error
}

// CommandRegistry holds all available commands
type CommandRegistry struct {
	commands map[string]*Command
}

// Global command registry
var commands = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command to the registry
func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.commands[alias] = cmd
	}
}

// Get retrieves a command by name or alias
func (r *CommandRegistry) Get(name string) *Command {
	return r.commands[name]
}

// List returns all unique commands sorted by name
func (r *CommandRegistry) List() []*Command {
	seen := make(map[string]bool)
	var list []*Command

	for _, cmd := range r.commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			list = append(list, cmd)
		}
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// executeCommand runs a command by name
func executeCommand(ctx context.Context, name string, args []string) bool {
	cmd := commands.Get(name)
	if cmd == nil {
		error_("Unknown command: %s (type 'help' for commands)", name)
		return true
	}

	if err := cmd.Handler(ctx, args); err != nil {
		error_("%v", err)
	}

	// Return false if we should exit
	return cmd.Name != "exit"
}

func init() {
	registerCoreCommands()
	registerShareCommands()
	registerFileCommands()
	registerXattrCommands()
}

func registerCoreCommands() {
	commands.Register(&Command{
		Name:        "help",
		Aliases:     []string{"?", "h"},
		Description: "Show available commands",
		Usage:       "help [command]",
		Category:    "Core",
		Handler:     cmdHelp,
	})

	commands.Register(&Command{
		Name:        "exit",
		Aliases:     []string{"quit", "q"},
		Description: "Exit the shell",
		Category:    "Core",
		Handler:     cmdExit,
	})

	commands.Register(&Command{
		Name:        "info",
		Description: "Show target and client options",
		Category:    "Core",
		Handler:     cmdInfo,
	})

	commands.Register(&Command{
		Name:        "option",
		Aliases:     []string{"set"},
		Description: "Change a client option (e.g. option timeout 5000)",
		Usage:       "option <name> <value>",
		Category:    "Core",
		Handler:     cmdOption,
	})
}

var categoryOrder = []string{"Core", "Shares", "Files", "Security"}

func cmdHelp(ctx context.Context, args []string) error {
	if len(args) > 0 {
		cmd := commands.Get(strings.ToLower(args[0]))
		if cmd == nil {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Printf("\n  %s%s%s - %s\n", colorBold, cmd.Name, colorReset, cmd.Description)
		if cmd.Usage != "" {
			fmt.Printf("  Usage: %s\n", cmd.Usage)
		}
		if len(cmd.Aliases) > 0 {
			fmt.Printf("  Aliases: %s\n", strings.Join(cmd.Aliases, ", "))
		}
		fmt.Println()
		return nil
	}

	byCategory := make(map[string][]*Command)
	for _, cmd := range commands.List() {
		byCategory[cmd.Category] = append(byCategory[cmd.Category], cmd)
	}

	fmt.Println()
	for _, cat := range categoryOrder {
		fmt.Printf("  %s%s%s\n", colorBold, cat, colorReset)
		for _, cmd := range byCategory[cat] {
			fmt.Printf("    %-12s %s\n", cmd.Name, cmd.Description)
		}
		fmt.Println()
	}
	return nil
}

func cmdExit(ctx context.Context, args []string) error {
	return nil
}

func cmdInfo(ctx context.Context, args []string) error {
	o := client.Options()
	fmt.Println()
	fmt.Printf("  Target:      %s\n", serverURI())
	fmt.Printf("  Share:       %s\n", currentShare)
	fmt.Printf("  Directory:   /%s\n", currentPath)
	fmt.Printf("  NetBIOS:     %s\n", o.NetBIOSName)
	fmt.Printf("  Workgroup:   %s\n", o.Workgroup)
	fmt.Printf("  Timeout:     %v\n", o.Timeout)
	fmt.Printf("  Kerberos:    %v (fallback %v)\n", o.UseKerberos, o.FallbackAfterKerberos)
	fmt.Printf("  Anonymous:   %v\n", !o.NoAutoAnonymousLogin)
	if o.SOCKS5 != "" {
		fmt.Printf("  SOCKS5:      %s\n", o.SOCKS5)
	}
	fmt.Println()
	return nil
}

func cmdOption(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: option <name> <value>")
	}
	if err := client.SetOption(args[0], optionValue(args[1])); err != nil {
		return err
	}
	success_("%s = %s", args[0], args[1])
	return nil
}

// optionValue turns shell text into the typed value SetOption expects.
func optionValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
