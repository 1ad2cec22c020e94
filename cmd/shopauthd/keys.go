package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/jwt"
	"github.com/MrEthical07/shopauth/password"
)

func newGenKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-keys",
		Short: "Print fresh Ed25519 access and refresh key pairs as PEM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, name := range []string{"access", "refresh"} {
				kp, err := jwt.GenerateEd25519PEM()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "# %s private key\n%s# %s public key\n%s", name, kp.Private, name, kp.Public)
			}
			return nil
		},
	}
}

// newHashPasswordCmd hashes a password read from stdin, for seeding accounts.
func newHashPasswordCmd(load func() (shopauth.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin with the configured algorithm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			plaintext := strings.TrimRight(line, "\r\n")

			hasher, err := configuredHasher(cfg.Password)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func configuredHasher(cfg shopauth.PasswordConfig) (password.Hasher, error) {
	if cfg.Algorithm == "bcrypt" {
		return password.NewBcrypt(password.BcryptConfig{
			Cost:             cfg.BcryptCost,
			MaxPasswordBytes: cfg.MaxPasswordBytes,
		})
	}
	return password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
}
