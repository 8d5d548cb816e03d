package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/chat"
	"github.com/ashureev/statefultalk/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/containerd/errdefs"
	"github.com/spf13/cobra"
)

const listTimeout = 30 * time.Second

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <api-key>",
		Short: "Validate and store a Letta API key",
		Long: `Validates the key by listing agents, stores it, and finds or creates the
shared user profile block.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			key := strings.TrimSpace(args[0])
			if err := s.ValidateCredential(ctx, key); err != nil {
				return err
			}
			if err := s.SetCredential(ctx, &key); err != nil {
				return err
			}
			s.Wait()
			fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key and profile block id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.SetCredential(cmd.Context(), nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key removed.")
			return nil
		},
	}
}

func newCharactersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "characters [query]",
		Short: "List characters, optionally filtered by name or description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			var bound map[string]string
			if s, err := a.session(ctx); err == nil {
				if client, err := s.Client(); err == nil {
					listCtx, cancel := context.WithTimeout(ctx, listTimeout)
					bound = agents.ListAllAgents(listCtx, client, a.logger)
					cancel()
				}
			}

			list := a.dir.Search(query)
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No characters match %q.\n", query)
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, c := range list {
				status := "new"
				if id, ok := bound[c.AgentName()]; ok {
					status = id
				}
				rows = append(rows, []string{c.Handle, c.Name, c.ShortDescription, status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"HANDLE", "NAME", "DESCRIPTION", "AGENT"}, rows))
			return nil
		},
	}
}

func newAgentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List every remote agent on the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
			defer cancel()
			all := agents.ListAllAgents(ctx, client, a.logger)

			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, all[name]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"NAME", "ID"}, rows))
			return nil
		},
	}
}

func newProfileShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the shared user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			s.EnsureProfileContent(cmd.Context())
			content := s.Snapshot().SharedProfileContent
			if content == nil {
				return errors.New("shared profile is not available")
			}
			fmt.Fprintln(cmd.OutOrStdout(), *content)
			return nil
		},
	}
}

func newProfileSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <text>",
		Short: "Replace the shared user profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.UpdateSharedProfileContent(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile updated.")
			return nil
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <handle>",
		Short: "Delete a character's agent so the next chat starts fresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.dir.Get(args[0]); err != nil {
				return err
			}
			_, client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			id, err := a.resolver.Reset(cmd.Context(), client, args[0])
			if errdefs.IsNotFound(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No saved conversation for %s.\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted agent %s.\n", id)
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <handle>",
		Short: "Chat with a character in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			character, err := a.dir.Get(args[0])
			if err != nil {
				return err
			}
			s, _, err := a.client(ctx)
			if err != nil {
				return err
			}

			view := chat.NewSession(character, a.resolver, s, a.logger)
			if _, err := view.Open(ctx); err != nil {
				return fmt.Errorf("open chat with %s: %w", character.Name, err)
			}

			model := tui.New(ctx, view, a.drainNotices)
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
