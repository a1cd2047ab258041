package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ikonnect/agency-chat/internal/chat"
	"github.com/ikonnect/agency-chat/internal/config"
	"github.com/ikonnect/agency-chat/internal/db"
	"github.com/ikonnect/agency-chat/internal/logging"
	"github.com/ikonnect/agency-chat/internal/models"
	"github.com/ikonnect/agency-chat/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type state struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:   "agency",
		Short: "Ikonnect Service chat back-end",
		Long: `Runs and inspects the website chat assistant: the HTTP API, stored
conversations and the sentiment classifier.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if v, _ := cmd.Flags().GetString("db"); v != "" {
				cfg.DBPath = v
			}
			if v, _ := cmd.Flags().GetString("store"); v != "" {
				cfg.Store = v
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.LogLevel = "debug"
				cfg.LogDevelopment = true
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			st.cfg, st.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(newServeCmd(st))
	rootCmd.AddCommand(newConversationsCmd(st))
	rootCmd.AddCommand(newSentimentCmd(st))
	rootCmd.AddCommand(newAskCmd(st))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().String("store", "", "Conversation store: sqlite or memory (overrides CHAT_STORE)")

	return rootCmd
}

func newServeCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.cfg.Validate(); err != nil {
				return err
			}
			app, err := server.New(st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.ListenAndServe(ctx)
		},
	}
}

func newConversationsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List stored chat exchanges",
		Long: `Lists stored chat exchanges, newest first. With --session only that
session's exchanges are shown, oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")

			store, err := db.Open(st.cfg.Store, st.cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			// Listing needs no completion backend, only the store.
			svc := chat.NewService(store, nil, st.logger)
			conversations, err := svc.List(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			return printConversations(cmd, conversations)
		},
	}
	cmd.Flags().String("session", "", "Only show this session")
	return cmd
}

func newSentimentCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "sentiment TEXT",
		Short: "Classify the sentiment of a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(st)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.LLM.AnalyzeSentiment(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s (confidence %.2f)\n", result.Sentiment, result.Confidence)
			return nil
		},
	}
}

func newAskCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask MESSAGE",
		Short: "Send one chat message and print the reply",
		Long: `Sends a message through the same pipeline as POST /api/chat: the
session's earlier exchanges are replayed and the new exchange is stored.
Example: agency ask --session cli-test "Do you offer logo design?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")

			app, err := newApp(st)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := app.Chat.Send(cmd.Context(), chat.SendInput{
				Message:   strings.Join(args, " "),
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Response)
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation %s\n", out.ConversationID)
			return nil
		},
	}
	cmd.Flags().String("session", "cli", "Session identifier to continue")
	return cmd
}

func newApp(st *state) (*server.App, error) {
	if err := st.cfg.Validate(); err != nil {
		return nil, err
	}
	return server.New(st.cfg, st.logger)
}

func printConversations(cmd *cobra.Command, conversations []models.ChatConversation) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSESSION\tID\tRATING\tQUERY")
	for _, c := range conversations {
		rating := "-"
		if c.Satisfaction != nil {
			rating = fmt.Sprintf("%d", *c.Satisfaction)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Format("2006-01-02 15:04:05"),
			c.SessionID,
			c.ID,
			rating,
			truncate(c.UserQuery, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

// Execute runs the root command with a background context.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}
