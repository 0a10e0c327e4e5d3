package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guardian/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "guardianctl",
		Short:         "Guardian commitment chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "guardian server address")

	root.AddCommand(newChatCmd(&addr))
	root.AddCommand(newHistoryCmd(&addr))
	root.AddCommand(newContractsCmd(&addr))
	root.AddCommand(newVerdictCmd(&addr))
	root.AddCommand(newStreakCmd(&addr))
	return root
}

func newChatCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Reply string `json:"reply"`
			}
			body := map[string]string{"message": strings.Join(args, " ")}
			if err := callAPI(*addr, http.MethodPost, "/api/chat", body, &out); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Reply)
			return nil
		},
	}
}

func newHistoryCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the chat transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Messages []domain.ChatMessage `json:"messages"`
			}
			if err := callAPI(*addr, http.MethodGet, "/api/chat/history", nil, &out); err != nil {
				return err
			}
			if len(out.Messages) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no messages")
				return nil
			}
			for _, m := range out.Messages {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %s\n",
					m.Timestamp.Format("2006-01-02 15:04"), m.Role, m.Content)
			}
			return nil
		},
	}
}

func newContractsCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "List contracts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Contracts []domain.Contract `json:"contracts"`
			}
			if err := callAPI(*addr, http.MethodGet, "/api/contracts", nil, &out); err != nil {
				return err
			}
			if len(out.Contracts) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no contracts")
				return nil
			}
			for _, c := range out.Contracts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					c.ID, c.Status, c.StartTime.Format(time.RFC3339), c.Mission())
			}
			return nil
		},
	}
}

func newVerdictCmd(addr *string) *cobra.Command {
	var id, verdict string

	cmd := &cobra.Command{
		Use:   "verdict --id <id> --verdict <fulfilled|broken>",
		Short: "Finalize a contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("--id is required")
			}
			if verdict != "fulfilled" && verdict != "broken" {
				return fmt.Errorf("--verdict must be 'fulfilled' or 'broken'")
			}
			var out struct {
				Reply  string `json:"reply"`
				Streak int    `json:"streak"`
			}
			body := map[string]string{"verdict": verdict}
			if err := callAPI(*addr, http.MethodPost, "/api/contracts/"+id+"/verdict", body, &out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\nstreak=%d\n", out.Reply, out.Streak)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "contract id")
	cmd.Flags().StringVar(&verdict, "verdict", "", "fulfilled or broken")
	return cmd
}

func newStreakCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Print the current streak",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Streak int `json:"streak"`
			}
			if err := callAPI(*addr, http.MethodGet, "/api/streak", nil, &out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "streak=%d\n", out.Streak)
			return nil
		},
	}
}

// callAPI performs one JSON request against the guardian server.
func callAPI(addr, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(addr, "/")+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
