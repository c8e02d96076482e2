// Command subwire probes a server: it pings it, reports the negotiated
// protocol version and auth scheme, and optionally reads part of a stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ambiyansyah-risyal/subwire"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "subwire: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("subwire", pflag.ContinueOnError)
	var (
		configPath = flags.StringP("config", "c", "", "path to a TOML or YAML config file")
		server     = flags.String("server", "", "server URL (overrides config)")
		user       = flags.StringP("user", "u", "", "username (overrides config)")
		password   = flags.StringP("password", "p", "", "password (overrides config)")
		legacy     = flags.Bool("legacy-auth", false, "force the reversible password scheme")
		offline    = flags.Bool("offline", false, "pretend the network is unreachable")
		streamID   = flags.String("stream-id", "", "read the first bytes of this stream")
		offset     = flags.Int64("offset", 0, "byte offset to resume the stream at")
		timeout    = flags.Duration("timeout", 30*time.Second, "overall deadline for the probe")
		debug      = flags.Bool("debug", false, "log pipeline activity to stderr")
		showVer    = flags.Bool("version", false, "print version and exit")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVer {
		fmt.Fprintln(out, subwire.GetVersion())
		return nil
	}

	cfg := subwire.Config{ClientID: subwire.DefaultClientID, InitialVersion: subwire.DigestAuthMinVersion.String()}
	if *configPath != "" {
		loaded, err := subwire.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *server != "" {
		cfg.Server = *server
	}
	if *user != "" {
		cfg.Username = *user
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *legacy {
		cfg.ForceLegacyAuth = true
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if err := subwire.ValidateConfig(cfg); err != nil {
		return err
	}

	opts, cleanup, err := cfg.Options()
	if err != nil {
		return err
	}
	defer cleanup()

	online := !*offline
	opts = append(opts,
		subwire.WithNetworkState(subwire.NetworkStateFunc(func() bool { return online })),
		subwire.WithVersionListener(func(v subwire.ProtocolVersion) {
			fmt.Fprintf(out, "server reports protocol %s\n", v)
		}),
	)
	client := subwire.New(opts...)
	if !client.IsValid() {
		return client.ValidationError()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		switch {
		case errors.Is(err, subwire.ErrAuthenticationRejected):
			return fmt.Errorf("credentials rejected at protocol %s: %w", client.ProtocolVersion(), err)
		case errors.Is(err, subwire.ErrUnsatisfiableFromCache):
			return fmt.Errorf("offline and nothing cached: %w", err)
		default:
			return err
		}
	}

	v := client.ProtocolVersion()
	fmt.Fprintf(out, "ping ok: protocol %s, auth %s\n", v, subwire.SelectAuthScheme(v, forcedScheme(cfg)))

	if *streamID == "" {
		return nil
	}
	resp, err := client.Stream(ctx, *streamID, *offset)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stream %s: status %d, content-range %q, read %d bytes\n",
		*streamID, resp.StatusCode, resp.Header.Get("Content-Range"), n)
	return nil
}

func forcedScheme(cfg subwire.Config) subwire.AuthScheme {
	if cfg.ForceLegacyAuth {
		return subwire.AuthLegacyReversible
	}
	return subwire.AuthSchemeAuto
}
