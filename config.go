// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcprobe/chaincfg"
	"github.com/btcsuite/btcprobe/internal/version"
	"github.com/btcsuite/btcprobe/peer"
	"github.com/btcsuite/btcprobe/sampleconfig"
	"github.com/btcsuite/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "btcprobe.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btcprobe.log"
	defaultLogLevel       = "info"
	defaultNetwork        = "main"
	defaultTimeout        = peer.DefaultTimeout
	defaultMaxConcurrent  = 0
)

var (
	defaultHomeDir    = btcutil.AppDataDir("btcprobe", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// errInfoShown is returned by loadConfig when the version or the list of
// subsystems was requested and printed.
var errInfoShown = errors.New("information shown")

// config defines the configuration options for btcprobe.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion       bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string        `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir            string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging     bool          `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel        string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Network           string        `short:"n" long:"network" description:"Network to probe {main, test, signet, regtest}"`
	Timeout           time.Duration `short:"t" long:"timeout" description:"Time allowed for each handshake, connection included"`
	MaxConcurrent     int           `long:"maxconcurrent" description:"Max number of handshakes in flight at once -- 0 means no limit"`
	Proxy             string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser         string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass         string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	ProtocolVersion   uint32        `long:"protocolversion" description:"Protocol version to advertise"`
	UserAgentComments []string      `long:"useragent" description:"Comment to add to the user agent -- See BIP 14 for more information."`
	StrictHandshake   bool          `long:"strict" description:"Fail handshakes that see any command other than version or verack"`

	params  *chaincfg.Params
	dial    peer.DialFunc
	targets []string
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		// Strip the brackets of a bare IPv6 literal before joining.
		host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		return net.JoinHostPort(host, defaultPort)
	}
	return addr
}

// removeDuplicateAddresses returns a new slice with all duplicate entries in
// addrs removed.
func removeDuplicateAddresses(addrs []string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, val := range addrs {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

// normalizeAndRemoveDuplicateAddresses returns a new slice with all the passed
// addresses normalized with the given default port, and all duplicates
// removed.
func normalizeAndRemoveDuplicateAddresses(addrs []string, defaultPort string) []string {
	normalized := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		normalized = append(normalized, normalizeAddress(addr, defaultPort))
	}
	return removeDuplicateAddresses(normalized)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createDefaultConfigFile writes the sample configuration to destinationPath,
// creating the directory as needed.
func createDefaultConfigFile(destinationPath string) error {
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}
	return os.WriteFile(destinationPath, []byte(sampleconfig.FileContents),
		0600)
}

// checkUserAgentComments ensures the user agent comments carry none of the
// characters BIP 14 reserves.
func checkUserAgentComments(comments []string) error {
	for _, uaComment := range comments {
		if strings.ContainsAny(uaComment, "/:()") {
			return fmt.Errorf("The following characters must not "+
				"appear in user agent comments: '/', ':', '(', ')' "+
				"-- parsed [%v]", uaComment)
		}
	}
	return nil
}

// proxyDial returns a dial function connecting through proxy.  The SOCKS
// exchange cannot be interrupted, so a dial still running when ctx is done is
// abandoned and its connection closed once it arrives.
func proxyDial(proxy *socks.Proxy) peer.DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var timeout time.Duration
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return nil, context.DeadlineExceeded
			}
		}

		type dialResult struct {
			conn net.Conn
			err  error
		}
		done := make(chan dialResult, 1)
		go func() {
			conn, err := proxy.DialTimeout(network, addr, timeout)
			done <- dialResult{conn, err}
		}()

		select {
		case res := <-done:
			return res.conn, res.err

		case <-ctx.Done():
			go func() {
				if res := <-done; res.conn != nil {
					res.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	parser.Usage = "[OPTIONS] host[:port] ..."
	return parser
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in btcprobe functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.  The remaining arguments are the probe targets.
func loadConfig(args []string, stdout, stderr io.Writer) (*config, error) {
	// Default config.
	cfg := config{
		ConfigFile:      defaultConfigFile,
		DebugLevel:      defaultLogLevel,
		LogDir:          defaultLogDir,
		Network:         defaultNetwork,
		Timeout:         defaultTimeout,
		MaxConcurrent:   defaultMaxConcurrent,
		ProtocolVersion: peer.MaxProtocolVersion,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Fprintln(stdout, version.UserAgentName, "version",
			version.String())
		return nil, errInfoShown
	}

	// Create the default config file when it does not exist yet.  A failure
	// is not fatal since every option can be given on the command line.
	var configFileError error
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(defaultConfigFile) {
		configFileError = createDefaultConfigFile(defaultConfigFile)
	}

	// Load additional config from file.
	parser := newConfigParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(stderr, "Use btcprobe -h to show usage")
			return nil, err
		}
		if preCfg.ConfigFile != defaultConfigFile {
			fmt.Fprintln(stderr, err)
			return nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	targets, err := parser.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, err
	}

	// usageError prints the error followed by a pointer to the usage and
	// returns it.
	usageError := func(err error) (*config, error) {
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stderr, "Use btcprobe -h to show usage")
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Fprintln(stdout, "Supported subsystems",
			supportedSubsystems())
		return nil, errInfoShown
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return usageError(fmt.Errorf("loadConfig: %v", err))
	}

	// Resolve the network parameters.
	cfg.params, err = chaincfg.ParamsForNetwork(cfg.Network)
	if err != nil {
		return usageError(fmt.Errorf("loadConfig: %v -- supported "+
			"networks %v", err, chaincfg.Selectors()))
	}

	// Validate the handshake settings.
	if cfg.Timeout <= 0 {
		str := "loadConfig: the timeout option must be positive -- " +
			"parsed [%v]"
		return usageError(fmt.Errorf(str, cfg.Timeout))
	}
	if cfg.MaxConcurrent < 0 {
		str := "loadConfig: the maxconcurrent option may not be " +
			"negative -- parsed [%v]"
		return usageError(fmt.Errorf(str, cfg.MaxConcurrent))
	}
	if cfg.ProtocolVersion == 0 || cfg.ProtocolVersion > peer.MaxProtocolVersion {
		str := "loadConfig: the protocolversion option must be between " +
			"1 and %d -- parsed [%v]"
		return usageError(fmt.Errorf(str, peer.MaxProtocolVersion,
			cfg.ProtocolVersion))
	}
	if err := checkUserAgentComments(cfg.UserAgentComments); err != nil {
		return usageError(fmt.Errorf("loadConfig: %v", err))
	}

	// Set up the dialer, going through the proxy when one is configured.
	var dialer net.Dialer
	cfg.dial = dialer.DialContext
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			str := "loadConfig: proxy address '%s' is invalid: %v"
			return usageError(fmt.Errorf(str, cfg.Proxy, err))
		}

		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.dial = proxyDial(proxy)
	}

	// Add the default port to all targets if needed and remove duplicate
	// addresses.
	cfg.targets = normalizeAndRemoveDuplicateAddresses(targets,
		cfg.params.DefaultPort)
	if len(cfg.targets) == 0 {
		return usageError(errors.New("loadConfig: at least one target " +
			"address must be specified"))
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		prbeLog.Warnf("%v", configFileError)
	}

	return &cfg, nil
}

// peerConfig returns the handshake configuration described by cfg.
func (cfg *config) peerConfig() *peer.Config {
	return &peer.Config{
		ChainParams:       cfg.params,
		ProtocolVersion:   cfg.ProtocolVersion,
		UserAgentName:     version.UserAgentName,
		UserAgentVersion:  version.UserAgentVersion(),
		UserAgentComments: cfg.UserAgentComments,
		Timeout:           cfg.Timeout,
		Dial:              cfg.dial,
		StrictHandshake:   cfg.StrictHandshake,
	}
}
