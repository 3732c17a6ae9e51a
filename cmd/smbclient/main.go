package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/mjwhitta/cli"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/ineffectivecoder/smbclient/internal/config"
	"github.com/ineffectivecoder/smbclient/internal/metrics"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smbc"
)

// Version info
const (
	Version = "0.2.0"
	Banner  = "smbclient"
)

// Colors for output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Global state
var (
	verbose      bool
	client       *smbc.Context
	targetHost   string
	targetPort   int
	currentShare string
	currentPath  string
)

func main() {
	var (
		target     string
		username   string
		password   string
		domain     string
		cfgPath    string
		socks5     string
		metricsAdr string
		execCmd    string
		timeout    int
		kerberos   bool
		noAnon     bool
		fullTimes  bool
		debugLevel int
	)

	// Configure CLI
	cli.Align = true
	cli.Banner = "smbclient [OPTIONS] -t <host|smb://host/share/path>"
	cli.Info("Browse and edit SMB2/3 shares from the terminal")
	cli.Authors = []string{"SMBGooser Team"}

	cli.Flag(&target, "t", "target", "", "Target host or smb:// URI")
	cli.Flag(&username, "u", "user", "", "Username")
	cli.Flag(&domain, "d", "domain", "", "Domain / workgroup")
	cli.Flag(&password, "p", "password", "", "Password (prompted when -u is set without it)")
	cli.Flag(&cfgPath, "c", "config", "", "Config file (default: ./smbclient.yaml)")
	cli.Flag(&socks5, "s", "socks5", "", "SOCKS5 proxy (e.g., 127.0.0.1:1080)")
	cli.Flag(&metricsAdr, "m", "metrics", "", "Serve Prometheus metrics on this address")
	cli.Flag(&execCmd, "x", "exec", "", "Execute command(s) and exit (semicolon separated)")
	cli.Flag(&timeout, "T", "timeout", 0, "Per-operation timeout in milliseconds")
	cli.Flag(&kerberos, "k", "kerberos", false, "Try Kerberos first, then NTLM")
	cli.Flag(&noAnon, "n", "no-anonymous", false, "Never fall back to anonymous login")
	cli.Flag(&fullTimes, "F", "full-times", false, "Show full timestamps in listings")
	cli.Flag(&debugLevel, "D", "debug", 0, "Debug level (0-10)")
	cli.Flag(&verbose, "v", "verbose", false, "Verbose output")

	cli.Parse()

	if target == "" {
		error_("Missing target (-t)")
		cli.Usage(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		error_("Config: %v", err)
		os.Exit(1)
	}

	opts := smbc.OptionsFromConfig(cfg)
	if domain != "" {
		opts.Workgroup = domain
	}
	if socks5 != "" {
		if !strings.HasPrefix(socks5, "socks5://") {
			socks5 = "socks5://" + socks5
		}
		opts.SOCKS5 = socks5
		info_("Using SOCKS5 proxy: %s", socks5)
	}
	if timeout > 0 {
		opts.Timeout = time.Duration(timeout) * time.Millisecond
	}
	if kerberos {
		opts.UseKerberos = true
		opts.FallbackAfterKerberos = true
	}
	opts.NoAutoAnonymousLogin = opts.NoAutoAnonymousLogin || noAnon
	opts.FullTimeNames = fullTimes
	if debugLevel > 0 {
		opts.Debug = debugLevel
	}
	if verbose && opts.Debug == 0 {
		opts.Debug = 1
	}

	if metricsAdr == "" {
		metricsAdr = cfg.MetricsAddr
	}
	if metricsAdr != "" {
		m := metrics.New()
		opts.Metrics = m
		go serveMetrics(metricsAdr, m)
	}

	client = smbc.New()
	defer client.Close()
	if err := client.Configure(opts); err != nil {
		error_("%v", err)
		os.Exit(1)
	}

	if err := setTarget(target); err != nil {
		error_("%v", err)
		cli.Usage(1)
	}

	if username != "" && password == "" {
		password = promptPassword()
	}
	if username != "" {
		client.SetCredentialsWithFallback(opts.Workgroup, username, password)
	}
	if term.IsTerminal(int(syscall.Stdin)) {
		client.SetCredentialResolver(smbc.CredentialResolverFunc(promptCredentials))
	}

	ctx := context.Background()

	if execCmd != "" {
		for _, cmd := range strings.Split(execCmd, ";") {
			cmd = strings.TrimSpace(cmd)
			if cmd == "" {
				continue
			}
			args := parseArgs(cmd)
			if len(args) > 0 {
				if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
					break
				}
			}
		}
		return
	}

	printBanner()
	runShell(ctx)
}

func printBanner() {
	fmt.Printf(colorCyan+"%s v%s"+colorReset+" - type 'help' for commands\n\n", Banner, Version)
}

// setTarget accepts a bare host or an smb:// URI naming a host, share and
// starting directory.
func setTarget(target string) error {
	if !strings.Contains(target, "://") {
		target = "smb://" + target + "/"
	}
	u, err := smbc.ParseURI(target)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("target %q names no host", target)
	}
	if u.User != "" {
		client.SetCredentialsWithFallback(u.Workgroup, u.User, u.Password)
	}
	targetHost = u.Host
	targetPort = u.Port
	currentShare = u.Share
	currentPath = u.Path
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	debug.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		warn_("Metrics server: %v", err)
	}
}

func runShell(ctx context.Context) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		return completeInput(ctx, input)
	})

	for {
		input, err := line.Prompt(buildPrompt())
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println("^C")
				continue
			}
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		args := parseArgs(input)
		if len(args) == 0 {
			continue
		}
		if !executeCommand(ctx, strings.ToLower(args[0]), args[1:]) {
			break
		}
	}
}

// completeInput provides tab completion for commands and paths
func completeInput(ctx context.Context, input string) []string {
	parts := strings.Fields(input)

	if len(parts) == 0 || (len(parts) == 1 && !strings.HasSuffix(input, " ")) {
		prefix := ""
		if len(parts) == 1 {
			prefix = strings.ToLower(parts[0])
		}
		return completeCommands(prefix)
	}

	cmd := commands.Get(strings.ToLower(parts[0]))
	if cmd == nil {
		return nil
	}
	pathArg := parts[len(parts)-1]
	if strings.HasSuffix(input, " ") {
		pathArg = ""
	}
	if cmd.Name == "use" {
		return completeShares(ctx, pathArg, input)
	}
	if cmd.Paths {
		return completePaths(ctx, pathArg, input)
	}
	return nil
}

// completeCommands returns command names matching prefix
func completeCommands(prefix string) []string {
	var matches []string
	for _, cmd := range commands.List() {
		if strings.HasPrefix(cmd.Name, prefix) {
			matches = append(matches, cmd.Name)
		}
	}
	sort.Strings(matches)
	return matches
}

// completePaths lists the remote directory the partial argument points into.
func completePaths(ctx context.Context, pathArg, fullInput string) []string {
	if currentShare == "" {
		return nil
	}
	dirPart, prefix := "", pathArg
	if i := strings.LastIndexAny(pathArg, `/\`); i >= 0 {
		dirPart, prefix = pathArg[:i+1], pathArg[i+1:]
	}

	d, err := client.OpenDir(ctx, remoteURI(dirPart))
	if err != nil {
		return nil
	}
	defer d.Close(ctx)
	entries, err := d.ReadEntries(ctx)
	if err != nil {
		return nil
	}

	baseInput := strings.TrimSuffix(fullInput, pathArg)
	var matches []string
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(e.Name), strings.ToLower(prefix)) {
			continue
		}
		name := e.Name
		if e.Type == smbc.DirentDir {
			name += "/"
		}
		matches = append(matches, baseInput+dirPart+name)
	}
	sort.Strings(matches)
	return matches
}

// completeShares returns share names from the server's share list
func completeShares(ctx context.Context, prefix, fullInput string) []string {
	entries, err := listDir(ctx, serverURI())
	if err != nil {
		return nil
	}
	baseInput := strings.TrimSuffix(fullInput, prefix)
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(strings.ToLower(e.Name), strings.ToLower(prefix)) {
			matches = append(matches, baseInput+e.Name)
		}
	}
	return matches
}

func buildPrompt() string {
	var parts []string
	parts = append(parts, colorBold+"[smb]"+colorReset)

	hostPart := colorCyan + targetHost + colorReset
	if currentShare != "" {
		hostPart += "/" + currentShare
		if currentPath != "" {
			hostPart += "/" + currentPath
		}
	}
	parts = append(parts, hostPart)

	return strings.Join(parts, " ") + "> "
}

// serverURI names the target's share list.
func serverURI() string {
	u := smbc.URI{Host: targetHost, Port: targetPort}
	return u.String()
}

// remoteURI resolves arg against the current share and directory. Full
// smb:// URIs pass through untouched.
func remoteURI(arg string) string {
	if strings.HasPrefix(strings.ToLower(arg), "smb://") {
		return arg
	}
	u := smbc.URI{Host: targetHost, Port: targetPort, Share: currentShare, Path: resolvePath(currentPath, arg)}
	return u.String()
}

// resolvePath joins arg onto cwd and cleans the result. Both separators
// are accepted; ".." never climbs above the share root.
func resolvePath(cwd, arg string) string {
	arg = strings.ReplaceAll(arg, `\`, "/")
	p := arg
	if !strings.HasPrefix(arg, "/") {
		p = cwd + "/" + arg
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func parseArgs(line string) []string {
	// Simple arg parsing - splits on spaces, handles quotes
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	quoted := false

	for _, r := range line {
		switch {
		case r == '"' || r == '\'':
			if inQuote && r == quoteChar {
				inQuote = false
			} else if !inQuote {
				inQuote = true
				quoteChar = r
				quoted = true
			} else {
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	return args
}

// Output helpers
func info_(format string, args ...interface{}) {
	fmt.Printf(colorCyan+"[*]"+colorReset+" "+format+"\n", args...)
}

func success_(format string, args ...interface{}) {
	fmt.Printf(colorGreen+"[+]"+colorReset+" "+format+"\n", args...)
}

func error_(format string, args ...interface{}) {
	fmt.Printf(colorRed+"[!]"+colorReset+" "+format+"\n", args...)
}

func warn_(format string, args ...interface{}) {
	fmt.Printf(colorYellow+"[-]"+colorReset+" "+format+"\n", args...)
}

func debug_(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(colorBlue+"[D]"+colorReset+" "+format+"\n", args...)
	}
}

func promptPassword() string {
	fmt.Print("Password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		error_("Failed to read password: %v", err)
		os.Exit(1)
	}
	return string(passBytes)
}

// promptCredentials asks on the terminal when a share refuses the
// credentials already tried.
func promptCredentials(ctx context.Context, server, share string, current smbc.Credentials) (smbc.Credentials, error) {
	fmt.Printf("Credentials for \\\\%s\\%s\n", server, share)
	fmt.Printf("Username [%s]: ", current.Username)
	var user string
	if _, err := fmt.Scanln(&user); err != nil && err.Error() != "unexpected newline" {
		return current, err
	}
	if user == "" {
		user = current.Username
	}
	if user == "" {
		return current, errors.New("no username entered")
	}
	fmt.Print("Password: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return current, err
	}
	wg := current.Workgroup
	if i := strings.IndexAny(user, `\;`); i > 0 {
		wg, user = user[:i], user[i+1:]
	}
	return smbc.Credentials{Workgroup: wg, Username: user, Password: string(pass)}, nil
}
