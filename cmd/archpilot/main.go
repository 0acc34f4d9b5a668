package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "archpilot",
	Short: "ArchPilot CLI",
	Long:  "A CLI for generating architecture designs with ArchPilot.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(designCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(statusCmd())
}

func promptLine(label string) string {
	fmt.Print(label)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

// --- auth ---

func authCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "auth", Short: "Sign up, verify, and sign in"}

	signupCmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = promptLine("Password: ")
			}
			client := newClient()
			result, err := client.post("/v1/auth/signup", map[string]any{
				"email":    args[0],
				"password": password,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if id, ok := result["identity_id"].(string); ok {
				cfg.IdentityID = id
				if err := saveConfig(); err != nil {
					printError("failed to save config: " + err.Error())
				}
			}
			printSuccess("Account created. Check your mail for the verification code,")
			printSuccess("then run: archpilot auth verify <code>")
			printResult(result)
			return nil
		},
	}
	signupCmd.Flags().String("password", "", "Account password (prompted when omitted)")

	verifyCmd := &cobra.Command{
		Use:   "verify <code>",
		Short: "Submit the 6-digit verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identityID, _ := cmd.Flags().GetString("identity")
			if identityID == "" {
				identityID = cfg.IdentityID
			}
			if identityID == "" {
				printError("no identity on record, pass --identity")
				return nil
			}
			client := newClient()
			result, err := client.post("/v1/auth/verify", map[string]any{
				"identity_id": identityID,
				"code":        args[0],
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	verifyCmd.Flags().String("identity", "", "Identity ID (default: last signup)")

	resendCmd := &cobra.Command{
		Use:   "resend",
		Short: "Request a fresh verification code",
		RunE: func(cmd *cobra.Command, args []string) error {
			identityID, _ := cmd.Flags().GetString("identity")
			if identityID == "" {
				identityID = cfg.IdentityID
			}
			if identityID == "" {
				printError("no identity on record, pass --identity")
				return nil
			}
			client := newClient()
			result, err := client.post("/v1/auth/resend", map[string]any{"identity_id": identityID})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	resendCmd.Flags().String("identity", "", "Identity ID (default: last signup)")

	signinCmd := &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = promptLine("Password: ")
			}
			client := newClient()
			result, err := client.post("/v1/auth/signin", map[string]any{
				"email":    args[0],
				"password": password,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if token, ok := result["session_token"].(string); ok {
				cfg.SessionToken = token
				if err := saveConfig(); err != nil {
					printError("failed to save config: " + err.Error())
					return nil
				}
			}
			printSuccess("Signed in. Session token saved.")
			return nil
		},
	}
	signinCmd.Flags().String("password", "", "Account password (prompted when omitted)")

	signoutCmd := &cobra.Command{
		Use:   "signout",
		Short: "Revoke the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			if _, err := client.post("/v1/auth/signout", nil); err != nil {
				printError(err.Error())
				return nil
			}
			cfg.SessionToken = ""
			if err := saveConfig(); err != nil {
				printError("failed to save config: " + err.Error())
				return nil
			}
			printSuccess("Signed out.")
			return nil
		},
	}

	cmd.AddCommand(signupCmd, verifyCmd, resendCmd, signinCmd, signoutCmd)
	return cmd
}

// --- keys ---

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Manage personal provider API keys"}

	setCmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a personal API key (openai, gemini, anthropic)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey, _ := cmd.Flags().GetString("key")
			if apiKey == "" {
				apiKey = promptLine("API key: ")
			}
			client := newClient()
			result, err := client.put("/v1/keys/"+args[0], map[string]any{"api_key": apiKey})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	setCmd.Flags().String("key", "", "API key (prompted when omitted)")

	removeCmd := &cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.delete("/v1/keys/" + args[0])
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(setCmd, removeCmd)
	return cmd
}

// --- account ---

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage the linked account and deletion"}

	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Link a source-hosting account token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = promptLine("Account token: ")
			}
			client := newClient()
			result, err := client.put("/v1/account/link", map[string]any{"token": token})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	linkCmd.Flags().String("token", "", "Account token (prompted when omitted)")

	unlinkCmd := &cobra.Command{
		Use:   "unlink",
		Short: "Remove the linked account token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.delete("/v1/account/link")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the account and every stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := promptLine("Type the word 'delete' to confirm: ")
			if confirm != "delete" {
				printError("aborted")
				return nil
			}
			client := newClient()
			result, err := client.delete("/v1/account")
			if err != nil {
				printError(err.Error())
				return nil
			}
			cfg.SessionToken = ""
			cfg.IdentityID = ""
			if err := saveConfig(); err != nil {
				printError("failed to save config: " + err.Error())
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(linkCmd, unlinkCmd, deleteCmd)
	return cmd
}

// --- design ---

func designCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "design", Short: "Generate and list architecture designs"}

	generateCmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate an architecture design",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerName, _ := cmd.Flags().GetString("provider")
			model, _ := cmd.Flags().GetString("model")
			client := newClient()
			result, err := client.post("/v1/designs/generate", map[string]any{
				"prompt":   strings.Join(args, " "),
				"provider": providerName,
				"model":    model,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			if content, ok := result["content"].(string); ok && outputFormat == "table" {
				fmt.Println(content)
				return nil
			}
			printResult(result)
			return nil
		},
	}
	generateCmd.Flags().String("provider", "openai", "AI provider: openai, gemini, anthropic")
	generateCmd.Flags().String("model", "", "Model override (default: provider default)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored designs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/designs")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(generateCmd, listCmd)
	return cmd
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the request audit trail"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries for this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetString("limit")
			path := "/v1/sys/audit-log"
			if limit != "" {
				path += "?limit=" + limit
			}
			client := newClient()
			result, err := client.get(path)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	listCmd.Flags().String("limit", "", "Maximum entries to return")

	cmd.AddCommand(listCmd)
	return cmd
}

// --- status ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/v1/sys/health")
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}
