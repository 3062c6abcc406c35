/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blacktop/crosspub/internal/config"
	"github.com/blacktop/crosspub/internal/xpost"
)

var (
	codeFlag     string
	verifierFlag string
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <platform>",
		Short: "Exchange an authorization code for an access token",
		Long: "token redeems the code from an OAuth redirect using CROSSPUB_<PLATFORM>_CLIENT_ID, " +
			"_CLIENT_SECRET and _REDIRECT_URI. The client secret is prompted for when unset.",
		Args: cobra.ExactArgs(1),
		RunE: runToken,
	}

	cmd.Flags().StringVar(&codeFlag, "code", "", "Authorization code from the redirect")
	cmd.Flags().StringVar(&verifierFlag, "code-verifier", "", "PKCE code verifier (X, TikTok)")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	platform, err := platformArg(args)
	if err != nil {
		return err
	}
	creds, err := config.ClientCredentials(platform)
	if err != nil {
		return err
	}
	if creds.ClientSecret == "" {
		secret, err := promptSecret(platform)
		if err != nil {
			return err
		}
		creds.ClientSecret = secret
	}

	req := xpost.TokenExchangeRequest{
		Code:         codeFlag,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURI:  creds.RedirectURI,
	}
	if cmd.Flags().Changed("code-verifier") {
		req.CodeVerifier = &verifierFlag
	}

	adapter, err := adapterFor(platform)
	if err != nil {
		return err
	}
	res, err := adapter.ExchangeToken(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func promptSecret(platform xpost.Platform) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", xpost.MissingEnvError{Provider: string(platform), Variables: []string{config.EnvKey(platform, "CLIENT_SECRET")}}
	}
	fmt.Fprintf(os.Stderr, "%s client secret: ", platform)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read client secret: %w", err)
	}
	return string(secret), nil
}
