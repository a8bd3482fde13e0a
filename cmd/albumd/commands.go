package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/goSession/cookie"
	"github.com/MrEthical07/goSession/internal/settings"
	"github.com/MrEthical07/goSession/password"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "albumd",
		Short:        "Photo-album session server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "settings file (default ./Settings.*)")

	root.AddCommand(
		newServeCmd(&configFile),
		newHashPasswordCmd(&configFile),
		newKeygenCmd(),
	)
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings.Load(*configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), s, cmd.ErrOrStderr())
		},
	}
}

func newHashPasswordCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an Argon2id hash for a password read from the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := password.DefaultParams()
			if *configFile != "" {
				s, err := settings.Load(*configFile)
				if err != nil {
					return err
				}
				params = s.Password
			}
			hasher, err := password.NewHasher(params)
			if err != nil {
				return err
			}

			plain, err := readPassword(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			encoded, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}
}

func readPassword(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password given")
	}
	return line, nil
}

func newKeygenCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random base64 master key for server.key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < cookie.MinMasterSecretSize {
				return fmt.Errorf("key size must be at least %d bytes", cookie.MinMasterSecretSize)
			}
			key := make([]byte, size)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return err
		},
	}
	cmd.Flags().IntVar(&size, "size", 64, "key size in bytes")
	return cmd
}
