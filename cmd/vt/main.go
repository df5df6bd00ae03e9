// vt - admin CLI for the voicetasks service
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/egcoder/telegram-ai-bot/internal/access"
	"github.com/egcoder/telegram-ai-bot/internal/app"
	"github.com/egcoder/telegram-ai-bot/internal/calendar"
	"github.com/egcoder/telegram-ai-bot/internal/config"
	"github.com/egcoder/telegram-ai-bot/internal/core"
)

var (
	configPath string
	envFile    string
	actorID    string

	version = "0.3.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vt",
		Short: "voicetasks admin CLI",
		Long: `vt manages the voicetasks access list and audit ledger, and runs the
analysis parser offline.

Commands that change access act as --as, defaulting to the first configured
admin.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $DATA_DIR/config.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVar(&actorID, "as", "", "acting admin identity")

	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(redeemCmd())
	rootCmd.AddCommand(grantCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

// openCore loads config and opens the store. The returned actor is --as or
// the first configured admin.
func openCore() (*app.Core, core.Identity, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	admins := cfg.Access.Admins()
	if len(admins) == 0 {
		return nil, "", errors.New("no admin configured: set ADMIN_USER_ID")
	}
	actor := core.Identity(actorID)
	if actor == "" {
		actor = core.Identity(admins[0])
	}
	c, err := app.OpenCore(cfg)
	if err != nil {
		return nil, "", err
	}
	return c, actor, nil
}

// userError prints coded errors with their user-facing message.
func userError(err error) error {
	var coded *core.Error
	if errors.As(err, &coded) {
		return fmt.Errorf("%s: %s (%v)", coded.Code, core.UserMessage(err, core.LangEnglish), err)
	}
	return err
}

// inviteCmd issues an invitation
func inviteCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Issue a single-use invitation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, actor, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			if !cmd.Flags().Changed("ttl") {
				ttl = c.Config.Access.InvitationTTL.Std()
			}
			tok, err := c.Gate.IssueInvitation(cmd.Context(), actor, ttl)
			if err != nil {
				return userError(err)
			}

			fmt.Println("✅ Invitation issued")
			fmt.Printf("   Token:   %s\n", tok.Token)
			if link := access.InviteLink(c.Config.Bot.Username, tok.Token); link != "" {
				fmt.Printf("   Link:    %s\n", link)
			}
			if tok.ExpiresAt != nil {
				fmt.Printf("   Expires: %s\n", tok.ExpiresAt.Local().Format("2006-01-02 15:04"))
			} else {
				fmt.Println("   Expires: never")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "invitation lifetime; 0 never expires (default from config)")
	return cmd
}

// redeemCmd redeems an invitation on behalf of an identity
func redeemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <token> <identity>",
		Short: "Redeem an invitation for an identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			token := args[0]
			if t, ok := access.ParseStartPayload(token); ok {
				token = t
			}
			state, err := c.Gate.Redeem(cmd.Context(), token, core.Identity(args[1]))
			if err != nil {
				return userError(err)
			}
			fmt.Printf("✅ %s is now %s\n", args[1], state)
			return nil
		},
	}
}

func grantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <identity>",
		Short: "Authorize an identity directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, actor, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Gate.Grant(cmd.Context(), core.Identity(args[0]), actor); err != nil {
				return userError(err)
			}
			fmt.Printf("✅ %s authorized\n", args[0])
			return nil
		},
	}
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <identity>",
		Short: "Revoke an identity's access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, actor, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Gate.Revoke(cmd.Context(), core.Identity(args[0]), actor); err != nil {
				return userError(err)
			}
			fmt.Printf("✅ %s revoked\n", args[0])
			return nil
		},
	}
}

// usersCmd lists authorized identities and pending invitations
func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List admins, authorized identities and pending invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, actor, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			grants, err := c.Gate.ListAuthorized(ctx, actor)
			if err != nil {
				return userError(err)
			}
			pending, err := c.Gate.ListPending(ctx, actor)
			if err != nil {
				return userError(err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tSTATE\tSINCE")
			for _, id := range c.Gate.Admins() {
				fmt.Fprintf(w, "%s\t%s\t-\n", id, core.StateAdmin)
			}
			for _, g := range grants {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.Identity, g.State, g.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			w.Flush()

			fmt.Printf("\n%d authorized, %d pending invitations\n", len(grants), len(pending))
			for _, p := range pending {
				exp := "never"
				if p.ExpiresAt != nil {
					exp = p.ExpiresAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Printf("   issued by %s at %s, expires %s\n", p.Issuer, p.CreatedAt.Local().Format("2006-01-02 15:04"), exp)
			}
			return nil
		},
	}
}

// ledgerCmd shows and verifies the audit ledger
func ledgerCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent audit ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			entries, err := c.Ledger.GetRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tACTOR\tSUBJECT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Actor, e.EntityID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the ledger hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openCore()
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Ledger.Count(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Ledger.VerifyChain(cmd.Context()); err != nil {
				return fmt.Errorf("❌ ledger chain broken: %w", err)
			}
			fmt.Printf("✅ ledger chain intact (%d entries)\n", n)
			return nil
		},
	})
	return cmd
}

// parseCmd runs the analysis parser and link builder over a saved reply
func parseCmd() *cobra.Command {
	var (
		lang    string
		at      string
		asJSON  bool
		noLinks bool
	)
	cmd := &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse a saved analysis reply into action items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var reply []byte
			if args[0] == "-" {
				reply, err = io.ReadAll(os.Stdin)
			} else {
				reply, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			hint, ok := core.ParseLanguage(lang)
			if !ok {
				return fmt.Errorf("unsupported language %q", lang)
			}
			now := time.Now().In(cfg.Location())
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --now: %w", err)
				}
			}

			res, err := app.NewParser(cfg).Parse(core.RawAnalysis{Reply: string(reply), Language: hint}, now)
			if err != nil {
				return userError(err)
			}
			links, err := app.NewLinkBuilder(cfg)
			if err != nil {
				return err
			}

			type row struct {
				core.ActionItem
				Link string `json:"calendar_link,omitempty"`
			}
			rows := make([]row, len(res.Items))
			for i, it := range res.Items {
				rows[i].ActionItem = it
				if noLinks {
					continue
				}
				if l, err := links.Build(it, now); err == nil {
					rows[i].Link = l.URL
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"kind":      res.Kind,
					"summary":   res.Summary,
					"items":     rows,
					"topics":    res.Topics,
					"truncated": res.Truncated,
					"strategy":  res.Strategy,
				})
			}

			fmt.Printf("📝 %s (%s, %d items)\n", res.Kind, res.Strategy, len(rows))
			if res.Summary != "" {
				fmt.Printf("   %s\n", strings.ReplaceAll(res.Summary, "\n", "\n   "))
			}
			fmt.Println()
			for i, r := range rows {
				fmt.Printf("%2d. [%s] %s\n", i+1, r.Priority, r.Title)
				fmt.Printf("    deadline: %s\n", r.Deadline)
				if r.Link != "" {
					fmt.Printf("    %s\n", r.Link)
				}
			}
			if res.Truncated {
				fmt.Printf("\n⚠️  truncated to %d items\n", len(rows))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "auto", "language hint: auto, en, fr, ar")
	cmd.Flags().StringVar(&at, "now", "", "reference time (RFC 3339); default is the current time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&noLinks, "no-links", false, "skip calendar links")
	return cmd
}

// calendarCmd holds Google Calendar helpers
func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Google Calendar helpers",
	}

	var clientID, clientSecret string
	var timeout time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain a refresh token for direct calendar insertion",
		Long: `Runs the OAuth consent flow against a loopback redirect and prints the
refresh token to store in GOOGLE_REFRESH_TOKEN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if clientID == "" {
				clientID = cfg.Calendar.Google.ClientID
			}
			if clientSecret == "" {
				clientSecret = cfg.Calendar.Google.ClientSecret
			}
			if clientID == "" {
				return errors.New("missing client id: pass --client-id or set GOOGLE_CLIENT_ID")
			}
			if clientSecret == "" {
				if clientSecret, err = readSecret("Client secret: "); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			tok, err := calendar.LoopbackAuth(ctx, calendar.OAuthConfig(clientID, clientSecret, ""), os.Stdout, timeout)
			if err != nil {
				return err
			}
			if tok.RefreshToken == "" {
				return errors.New("no refresh token returned; revoke the app's access and retry")
			}
			fmt.Println("\n✅ Authorized. Add this to your environment:")
			fmt.Printf("   GOOGLE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id (default GOOGLE_CLIENT_ID)")
	tokenCmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (default GOOGLE_CLIENT_SECRET, else prompt)")
	tokenCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for consent")

	cmd.AddCommand(tokenCmd)
	return cmd
}

func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("client secret required: stdin is not a terminal")
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show vt version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vt %s\n", version)
		},
	}
}
