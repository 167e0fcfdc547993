package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/isometry/adauth/internal/logging"
)

// ErrAborted is returned when the password prompt is interrupted.
var ErrAborted = errors.New("aborted")

// errRejected makes the process exit non-zero after the result has been printed.
var errRejected = errors.New("authentication failed")

var passwordStdin bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <username>",
	Short: "Authenticate a username once and print the result",
	Long: `Authenticate a username against the configured directory and print the
result as JSON. The password is prompted for unless --password-stdin is given.

Examples:
  adauth resolve alice
  printf '%s\n' "$PASSWORD" | adauth resolve --password-stdin 'EXAMPLE\alice'`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
}

func runResolve(cmd *cobra.Command, args []string) error {
	username := strings.TrimSpace(args[0])
	if username == "" {
		return errors.New("username is required")
	}

	password, err := readPassword(cmd.InOrStdin(), passwordStdin)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Debug("Resolving", "username", username, "password", logging.Mask(password))
	result := a.resolver.Resolve(cmd.Context(), username, password)

	out := map[string]any{"success": result.OK}
	if result.OK {
		out["user"] = result.User
		out["cached"] = result.Cached
		if result.Principal != nil && result.Principal.DN != "" {
			out["profile"] = result.Principal
		}
	} else {
		out["message"] = string(result.Reason)
		out["candidates"] = result.Candidates
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if !result.OK {
		return errRejected
	}
	return nil
}

// readPassword reads a single line from in, or prompts with a masked input.
func readPassword(in io.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	prompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
	}
	password, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return "", ErrAborted
	}
	return password, err
}
