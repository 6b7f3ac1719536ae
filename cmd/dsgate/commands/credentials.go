package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"localhost/deepseek-proxy/internal/config"
)

// credentialsCommand returns the 'credentials' subcommand for managing the
// upstream API key.
func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage the upstream gateway API key",
		Commands: []*cli.Command{
			credentialsSetCommand(),
			credentialsClearCommand(),
		},
	}
}

func credentialsSetCommand() *cli.Command {
	return &cli.Command{
		Name:   "set",
		Usage:  "Store the upstream API key in the OS keyring",
		Action: credentialsSetAction,
	}
}

func credentialsClearCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Remove the upstream API key from the OS keyring",
		Action: credentialsClearAction,
	}
}

func credentialsSetAction(ctx context.Context, cmd *cli.Command) error {
	key, err := readSecureInput(ctx, "Enter upstream API key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("api key cannot be empty")
	}

	if err := keyring.Set(config.KeyringService, config.KeyringUser, key); err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}

	fmt.Println("API key saved to OS keyring")
	return nil
}

func credentialsClearAction(ctx context.Context, cmd *cli.Command) error {
	if err := keyring.Delete(config.KeyringService, config.KeyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			fmt.Println("No API key stored")
			return nil
		}
		return fmt.Errorf("failed to clear api key: %w", err)
	}

	fmt.Println("API key cleared from OS keyring")
	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
