package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ineffectivecoder/smbclient/pkg/smbc"
)

func registerShareCommands() {
	commands.Register(&Command{
		Name:        "shares",
		Description: "List the server's shares",
		Usage:       "shares",
		Category:    "Shares",
		Handler:     cmdShares,
	})

	commands.Register(&Command{
		Name:        "use",
		Aliases:     []string{"connect"},
		Description: "Switch to a share",
		Usage:       "use <sharename>",
		Category:    "Shares",
		Handler:     cmdUse,
	})

	commands.Register(&Command{
		Name:        "browse",
		Description: "List the configured workgroup",
		Category:    "Shares",
		Handler:     cmdBrowse,
	})
}

// listDir opens uri and returns every entry.
func listDir(ctx context.Context, uri string) ([]smbc.Dirent, error) {
	d, err := client.OpenDir(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer d.Close(ctx)
	return d.ReadEntries(ctx)
}

func cmdShares(ctx context.Context, args []string) error {
	entries, err := listDir(ctx, serverURI())
	if err != nil {
		return err
	}

	fmt.Println()
	for _, e := range entries {
		fmt.Printf("  %s%-15s%s [%-7s] %s\n", colorGreen, e.Name, colorReset, e.Type, e.Comment)
	}
	fmt.Println()
	success_("Found %d share(s)", len(entries))
	return nil
}

func cmdUse(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: use <sharename>")
	}
	share := strings.Trim(args[0], `/\`)
	u := smbc.URI{Host: targetHost, Port: targetPort, Share: share}
	st, err := client.Stat(ctx, u.String())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a disk share", share)
	}

	currentShare = share
	currentPath = ""
	success_("Connected to \\\\%s\\%s", targetHost, share)
	return nil
}

func cmdBrowse(ctx context.Context, args []string) error {
	entries, err := listDir(ctx, "smb://")
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("  %-15s [%s]\n", e.Name, e.Type)
	}
	return nil
}

func registerFileCommands() {
	commands.Register(&Command{
		Name:        "ls",
		Aliases:     []string{"dir", "list"},
		Description: "List directory contents",
		Usage:       "ls [path]",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdLs,
	})

	commands.Register(&Command{
		Name:        "cd",
		Description: "Change directory",
		Usage:       "cd [path]",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdCd,
	})

	commands.Register(&Command{
		Name:        "pwd",
		Description: "Print the current directory",
		Category:    "Files",
		Handler:     cmdPwd,
	})

	commands.Register(&Command{
		Name:        "cat",
		Aliases:     []string{"type"},
		Description: "Print a file",
		Usage:       "cat <file>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdCat,
	})

	commands.Register(&Command{
		Name:        "get",
		Aliases:     []string{"download"},
		Description: "Download a file",
		Usage:       "get <remote> [local]",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdGet,
	})

	commands.Register(&Command{
		Name:        "put",
		Aliases:     []string{"upload"},
		Description: "Upload a file",
		Usage:       "put <local> [remote]",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdPut,
	})

	commands.Register(&Command{
		Name:        "rm",
		Aliases:     []string{"del"},
		Description: "Delete a file",
		Usage:       "rm <file>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdRm,
	})

	commands.Register(&Command{
		Name:        "mkdir",
		Aliases:     []string{"md"},
		Description: "Create a directory",
		Usage:       "mkdir <dir>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdMkdir,
	})

	commands.Register(&Command{
		Name:        "rmdir",
		Aliases:     []string{"rd"},
		Description: "Remove an empty directory",
		Usage:       "rmdir <dir>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdRmdir,
	})

	commands.Register(&Command{
		Name:        "mv",
		Aliases:     []string{"rename"},
		Description: "Rename within the share",
		Usage:       "mv <old> <new>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdMv,
	})

	commands.Register(&Command{
		Name:        "stat",
		Description: "Show file metadata",
		Usage:       "stat <path>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdStat,
	})

	commands.Register(&Command{
		Name:        "chmod",
		Description: "Set or clear the read-only attribute (octal mode)",
		Usage:       "chmod <mode> <path>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdChmod,
	})

	commands.Register(&Command{
		Name:        "touch",
		Description: "Create a file or update its timestamps",
		Usage:       "touch <path>",
		Category:    "Files",
		Paths:       true,
		Handler:     cmdTouch,
	})
}

func requireShare() error {
	if currentShare == "" {
		return fmt.Errorf("no share selected (use 'use <share>')")
	}
	return nil
}

// formatTime renders a listing timestamp.
func formatTime(sec int64, full bool) string {
	t := time.Unix(sec, 0)
	if full {
		return t.Format("2006-01-02 15:04:05 -0700")
	}
	return t.Format("Jan _2 15:04")
}

func cmdLs(ctx context.Context, args []string) error {
	if err := requireShare(); err != nil {
		return err
	}
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	dirURI := remoteURI(target)
	dir, err := smbc.ParseURI(dirURI)
	if err != nil {
		return err
	}
	entries, err := listDir(ctx, dirURI)
	if err != nil {
		return err
	}

	full := client.Options().FullTimeNames
	fmt.Println()
	var files, dirs int
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := *dir
		child.Path = path.Join(dir.Path, e.Name)
		st, err := client.Stat(ctx, child.String())
		if err != nil {
			debug_("stat %s: %v", e.Name, err)
			fmt.Printf("  %-4s %12s  %-25s %s\n", e.Type, "?", "", e.Name)
			continue
		}
		name := e.Name
		if st.IsDir() {
			dirs++
			name = colorBlue + name + "/" + colorReset
		} else {
			files++
		}
		fmt.Printf("  %-4s %12d  %-25s %s\n", e.Type, st.Size, formatTime(st.Mtime, full), name)
	}
	fmt.Println()
	info_("%d dir(s), %d file(s)", dirs, files)
	return nil
}

func cmdCd(ctx context.Context, args []string) error {
	if err := requireShare(); err != nil {
		return err
	}
	if len(args) == 0 {
		currentPath = ""
		return nil
	}
	p := resolvePath(currentPath, args[0])
	if p != "" {
		u := smbc.URI{Host: targetHost, Port: targetPort, Share: currentShare, Path: p}
		st, err := client.Stat(ctx, u.String())
		if err != nil {
			return err
		}
		if !st.IsDir() {
			return fmt.Errorf("%s: not a directory", args[0])
		}
	}
	currentPath = p
	return nil
}

func cmdPwd(ctx context.Context, args []string) error {
	fmt.Printf("\\\\%s\\%s\\%s\n", targetHost, currentShare, strings.ReplaceAll(currentPath, "/", `\`))
	return nil
}

func cmdCat(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cat <file>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	f, err := client.Open(ctx, remoteURI(args[0]), os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	for chunk, err := range f.Chunks(ctx) {
		if err != nil {
			return err
		}
		os.Stdout.Write(chunk)
	}
	return nil
}

func cmdGet(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <remote> [local]")
	}
	if err := requireShare(); err != nil {
		return err
	}
	local := path.Base(strings.ReplaceAll(args[0], `\`, "/"))
	if len(args) > 1 {
		local = args[1]
	}

	f, err := client.Open(ctx, remoteURI(args[0]), os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	out, err := os.Create(local)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, f.Reader(ctx))
	if err != nil {
		return fmt.Errorf("download failed after %d bytes: %w", n, err)
	}
	success_("Downloaded %s (%d bytes)", local, n)
	return nil
}

func cmdPut(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: put <local> [remote]")
	}
	if err := requireShare(); err != nil {
		return err
	}
	remote := path.Base(args[0])
	if len(args) > 1 {
		remote = args[1]
	}

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	f, err := client.Open(ctx, remoteURI(remote), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	n, err := io.Copy(f.Writer(ctx), in)
	if err != nil {
		return fmt.Errorf("upload failed after %d bytes: %w", n, err)
	}
	success_("Uploaded %s (%d bytes)", remote, n)
	return nil
}

func cmdRm(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: rm <file>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	if err := client.Unlink(ctx, remoteURI(args[0])); err != nil {
		return err
	}
	success_("Deleted %s", args[0])
	return nil
}

func cmdMkdir(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mkdir <dir>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	if err := client.Mkdir(ctx, remoteURI(args[0]), 0o755); err != nil {
		return err
	}
	success_("Created %s", args[0])
	return nil
}

func cmdRmdir(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: rmdir <dir>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	if err := client.Rmdir(ctx, remoteURI(args[0])); err != nil {
		return err
	}
	success_("Removed %s", args[0])
	return nil
}

func cmdMv(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mv <old> <new>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	if err := client.Rename(ctx, remoteURI(args[0]), remoteURI(args[1]), nil); err != nil {
		return err
	}
	success_("Renamed %s -> %s", args[0], args[1])
	return nil
}

func cmdStat(ctx context.Context, args []string) error {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	st, err := client.Stat(ctx, remoteURI(target))
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("  Mode:   %s (%#o)\n", st.FileMode(), st.Mode)
	fmt.Printf("  Size:   %d\n", st.Size)
	fmt.Printf("  Inode:  %d\n", st.Ino)
	fmt.Printf("  Device: %#x\n", st.Dev)
	fmt.Printf("  Links:  %d\n", st.Nlink)
	fmt.Printf("  Owner:  uid=%d gid=%d\n", st.UID, st.GID)
	fmt.Printf("  Access: %s\n", formatTime(st.Atime, true))
	fmt.Printf("  Modify: %s\n", formatTime(st.Mtime, true))
	fmt.Printf("  Change: %s\n", formatTime(st.Ctime, true))
	fmt.Println()
	return nil
}

func cmdChmod(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: chmod <mode> <path>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	mode, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q", args[0])
	}
	return client.Chmod(ctx, remoteURI(args[1]), os.FileMode(mode))
}

func cmdTouch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: touch <path>")
	}
	if err := requireShare(); err != nil {
		return err
	}
	uri := remoteURI(args[0])
	now := time.Now()
	err := client.Utimes(ctx, uri, now, now)
	if err == nil || smbc.KindOf(err) != smbc.NoEntry {
		return err
	}
	f, err := client.Creat(ctx, uri, 0o644)
	if err != nil {
		return err
	}
	return f.Close(ctx)
}
