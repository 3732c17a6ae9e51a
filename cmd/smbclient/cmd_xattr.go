package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ineffectivecoder/smbclient/pkg/smbc"
)

const sdAllNamed = "system.nt_sec_desc.*+"

func registerXattrCommands() {
	commands.Register(&Command{
		Name:        "getxattr",
		Aliases:     []string{"acl"},
		Description: "Show the security descriptor or one of its parts",
		Usage:       "getxattr <path> [name]   (default " + sdAllNamed + ")",
		Category:    "Security",
		Paths:       true,
		Handler:     cmdGetXattr,
	})

	commands.Register(&Command{
		Name:        "setxattr",
		Description: "Set a security descriptor attribute",
		Usage:       "setxattr <path> <name> <value> [create|replace]",
		Category:    "Security",
		Paths:       true,
		Handler:     cmdSetXattr,
	})

	commands.Register(&Command{
		Name:        "rmxattr",
		Description: "Remove ACEs or empty the DACL",
		Usage:       "rmxattr <path> <name>",
		Category:    "Security",
		Paths:       true,
		Handler:     cmdRmXattr,
	})

	commands.Register(&Command{
		Name:        "lsxattr",
		Description: "List supported attribute names",
		Usage:       "lsxattr <path>",
		Category:    "Security",
		Paths:       true,
		Handler:     cmdLsXattr,
	})

	commands.Register(&Command{
		Name:        "acledit",
		Description: "Interactive ACL editor",
		Usage:       "acledit <path>",
		Category:    "Security",
		Paths:       true,
		Handler:     cmdACLEdit,
	})
}

// printDescriptor prints one descriptor field per line.
func printDescriptor(sd string) {
	for _, field := range strings.Split(sd, ",") {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			fmt.Printf("  %s\n", field)
			continue
		}
		fmt.Printf("  %s%-9s%s %s\n", colorCyan, key, colorReset, val)
	}
}

func cmdGetXattr(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: getxattr <path> [name]")
	}
	name := sdAllNamed
	if len(args) > 1 {
		name = args[1]
	}
	v, err := client.GetXattr(ctx, remoteURI(args[0]), name)
	if err != nil {
		return err
	}
	if strings.Contains(name, "*") {
		fmt.Println()
		printDescriptor(v)
		fmt.Println()
		return nil
	}
	fmt.Println(v)
	return nil
}

// xattrFlag parses the optional create/replace argument.
func xattrFlag(s string) (smbc.XattrFlag, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "create":
		return smbc.XattrCreate, nil
	case "replace":
		return smbc.XattrReplace, nil
	}
	return 0, fmt.Errorf("unknown flag %q (want create or replace)", s)
}

func cmdSetXattr(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: setxattr <path> <name> <value> [create|replace]")
	}
	var flagArg string
	if len(args) > 3 {
		flagArg = args[3]
	}
	flag, err := xattrFlag(flagArg)
	if err != nil {
		return err
	}
	if err := client.SetXattr(ctx, remoteURI(args[0]), args[1], args[2], flag); err != nil {
		return err
	}
	success_("Set %s", args[1])
	return nil
}

func cmdRmXattr(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: rmxattr <path> <name>")
	}
	if err := client.RemoveXattr(ctx, remoteURI(args[0]), args[1]); err != nil {
		return err
	}
	success_("Removed %s", args[1])
	return nil
}

func cmdLsXattr(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lsxattr <path>")
	}
	names, err := client.ListXattr(ctx, remoteURI(args[0]))
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

const aclEditHelp = `  show                        print owner, group and ACEs
  allow <principal> <f> <m>   grant mask m with ACE flags f
  deny  <principal> <f> <m>   deny mask m with ACE flags f
  del   <principal>           remove every ACE for principal
  owner <principal>           change the owner
  group <principal>           change the primary group
  exit                        leave the editor`

// cmdACLEdit runs a small line editor over one file's descriptor. Every
// change is written through immediately.
func cmdACLEdit(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: acledit <path>")
	}
	uri := remoteURI(args[0])
	if _, err := client.GetXattr(ctx, uri, "system.nt_sec_desc.revision"); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%sacl %s>%s ", colorCyan, args[0], colorReset),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("show"),
			readline.PcItem("allow"),
			readline.PcItem("deny"),
			readline.PcItem("del"),
			readline.PcItem("owner"),
			readline.PcItem("group"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	info_("Editing %s ('help' for commands)", uri)
	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fields := parseArgs(strings.TrimSpace(input))
		if len(fields) == 0 {
			continue
		}
		done, err := aclEditStep(ctx, uri, fields)
		if err != nil {
			error_("%v", err)
		}
		if done {
			return nil
		}
	}
}

// aclEditStep executes one editor line and reports whether to leave.
func aclEditStep(ctx context.Context, uri string, fields []string) (bool, error) {
	need := func(n int) error {
		if len(fields) != n+1 {
			return fmt.Errorf("%s takes %d argument(s)", fields[0], n)
		}
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "exit", "quit", "q":
		return true, nil
	case "help", "?":
		fmt.Println(aclEditHelp)
	case "show":
		v, err := client.GetXattr(ctx, uri, sdAllNamed)
		if err != nil {
			return false, err
		}
		printDescriptor(v)
	case "allow", "deny":
		if err := need(3); err != nil {
			return false, err
		}
		typ := "ALLOWED"
		if strings.EqualFold(fields[0], "deny") {
			typ = "DENIED"
		}
		value := typ + "/" + fields[2] + "/" + fields[3]
		return false, client.SetXattr(ctx, uri, "system.nt_sec_desc.acl+:"+fields[1], value, 0)
	case "del":
		if err := need(1); err != nil {
			return false, err
		}
		return false, client.RemoveXattr(ctx, uri, "system.nt_sec_desc.acl+:"+fields[1])
	case "owner", "group":
		if err := need(1); err != nil {
			return false, err
		}
		return false, client.SetXattr(ctx, uri, "system.nt_sec_desc."+strings.ToLower(fields[0])+"+", fields[1], 0)
	default:
		return false, fmt.Errorf("unknown editor command %q", fields[0])
	}
	return false, nil
}
